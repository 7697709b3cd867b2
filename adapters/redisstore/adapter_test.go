package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/socialgraph/core"
)

func newTestRegistry(t *testing.T) *VersionRegistry {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &VersionRegistry{client: client, keyPrefix: "social:version:"}
}

func TestVersionRegistry_GetOnMissingKeyReturnsZero(t *testing.T) {
	reg := newTestRegistry(t)
	got, err := reg.Get(context.Background(), social.UserID(1), social.StreamSentRequests)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestVersionRegistry_BumpThenGetRoundTrips(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	at := time.Unix(0, 1_700_000_000_000_000_000)

	require.NoError(t, reg.Bump(ctx, social.UserID(1), social.StreamSentRequests, at))

	got, err := reg.Get(ctx, social.UserID(1), social.StreamSentRequests)
	require.NoError(t, err)
	require.True(t, got.Equal(at))
}

func TestVersionRegistry_BumpIsLastWriterWinsOnWallClock(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	owner := social.UserID(7)
	later := time.Unix(0, 2_000_000_000_000_000_000)
	earlier := time.Unix(0, 1_000_000_000_000_000_000)

	require.NoError(t, reg.Bump(ctx, owner, social.StreamReceivedRequests, later))
	require.NoError(t, reg.Bump(ctx, owner, social.StreamReceivedRequests, earlier))

	got, err := reg.Get(ctx, owner, social.StreamReceivedRequests)
	require.NoError(t, err)
	require.True(t, got.Equal(later), "an earlier bump must not overwrite a newer recorded version")
}

func TestVersionRegistry_StreamsAreIndependent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	owner := social.UserID(3)
	sent := time.Unix(0, 1_000_000_000_000_000_000)

	require.NoError(t, reg.Bump(ctx, owner, social.StreamSentRequests, sent))

	got, err := reg.Get(ctx, owner, social.StreamGroupMembership)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}
