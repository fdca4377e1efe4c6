package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	release()
	_, ok, err = l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocalLockerLeaseExpires(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, ok, _ := l.TryLock(context.Background(), "k", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Second)
	require.True(t, ok)
}

func TestLocalLockerStaleReleaseKeepsNewLease(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, ok, _ := l.TryLock(ctx, "k", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	fresh, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)

	stale()
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	require.False(t, ok, "stale release dropped the new holder's lease")

	fresh()
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
}

func TestConnectParsesURL(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	require.Equal(t, 2, c.Options().DB)

	c, err = Connect("localhost:6380")
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", c.Options().Addr)
}
