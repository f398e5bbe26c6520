package keylog

import "testing"

func TestExtractObjectFieldSimple(t *testing.T) {
	data := []byte(`{"payload":{"a":1,"b":{"c":2}},"signature":"xyz"}`)
	got, err := ExtractObjectField(data, "payload")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := `{"a":1,"b":{"c":2}}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractObjectFieldMissingLabel(t *testing.T) {
	data := []byte(`{"other":{"a":1}}`)
	if _, err := ExtractObjectField(data, "payload"); err == nil {
		t.Fatal("expected error for missing label")
	}
}

func TestExtractObjectFieldUnbalancedBraces(t *testing.T) {
	data := []byte(`{"payload":{"a":1`)
	if _, err := ExtractObjectField(data, "payload"); err == nil {
		t.Fatal("expected error for unterminated object")
	}
}

func TestExtractObjectFieldSkipsWhitespaceBeforeBrace(t *testing.T) {
	data := []byte(`{"outer": {"body": {"key": "value"} }}`)
	got, err := ExtractObjectField(data, "body")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := `{"key": "value"}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractObjectFieldNestedLabelsDoNotConfuse(t *testing.T) {
	data := []byte(`{"wrapper":{"payload":{"x":1}},"payload":{"y":2}}`)
	got, err := ExtractObjectField(data, "payload")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// bytes.Index finds the first occurrence, which is the nested one; this
	// documents that ExtractObjectField is a dumb first-match extractor by
	// design, matching the byte-exact contract it's meant to serve.
	want := `{"x":1}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
