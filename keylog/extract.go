package keylog

import (
	"bytes"
	"fmt"
)

// ExtractObjectField returns the exact byte range of the JSON object value
// bound to the field named label, without re-encoding or re-parsing the
// surrounding document. The upstream JSON is produced with deterministic
// field order and no '{'/'}' inside string literals, so a naive brace
// counter is sufficient and — critically — byte-identical to the region
// that was originally signed. Do not replace this with a JSON library: any
// re-encoding would break signature verification over the raw bytes.
func ExtractObjectField(data []byte, label string) ([]byte, error) {
	marker := []byte(fmt.Sprintf("%q:", label))
	idx := bytes.Index(data, marker)
	if idx < 0 {
		return nil, fmt.Errorf("missing %s", label)
	}
	scanFrom := idx + len(marker)

	depth := 0
	braceStart := -1
	for i := scanFrom; i < len(data); i++ {
		switch data[i] {
		case '{':
			if braceStart < 0 {
				braceStart = i
			}
			depth++
		case '}':
			depth--
			if braceStart >= 0 && depth == 0 {
				return data[braceStart : i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("failed to extract %s", label)
}
