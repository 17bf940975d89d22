package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnLimiter_AllowsUpToMaxThenBlocks(t *testing.T) {
	l := newConnLimiter(3, time.Minute)
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestConnLimiter_ResetsAfterWindowElapses(t *testing.T) {
	l := newConnLimiter(1, 20*time.Millisecond)
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	time.Sleep(30 * time.Millisecond)
	require.True(t, l.Allow())
}
