package noncestore_test

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"hsmauthd/noncestore"
)

func TestReserveRejectsReplay(t *testing.T) {
	clk := clock.NewFake()
	s := noncestore.New(clk, 5*time.Minute)

	require.True(t, s.Reserve("nonce-1"), "first reservation should succeed")
	require.False(t, s.Reserve("nonce-1"), "second reservation of the same nonce should fail")
}

func TestReserveAllowsAfterExpiry(t *testing.T) {
	clk := clock.NewFake()
	s := noncestore.New(clk, 5*time.Minute)

	require.True(t, s.Reserve("nonce-1"))
	clk.Add(6 * time.Minute)
	require.True(t, s.Reserve("nonce-1"), "reservation should succeed again once expired")
}

func TestReserveAllowsDistinctNonces(t *testing.T) {
	clk := clock.NewFake()
	s := noncestore.New(clk, 5*time.Minute)

	require.True(t, s.Reserve("a"))
	require.True(t, s.Reserve("b"))
}
