package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/socialgraph/core"
)

func TestFriendRequestStore_InsertRejectsDuplicateID(t *testing.T) {
	store := NewFriendRequestStore()
	req := social.FriendRequest{ID: social.RequestID(1), RequesterID: 1, RecipientID: 2, Status: social.StatusPending, CreationDate: time.Now()}
	require.NoError(t, store.Insert(context.Background(), req, nil))
	err := store.Insert(context.Background(), req, nil)
	require.True(t, social.IsDuplicateKey(err))
}

func TestFriendRequestStore_UpdateStatusIfPendingGuardsOnStatus(t *testing.T) {
	store := NewFriendRequestStore()
	ctx := context.Background()
	req := social.FriendRequest{ID: social.RequestID(1), RequesterID: 1, RecipientID: 2, Status: social.StatusPending, CreationDate: time.Now()}
	require.NoError(t, store.Insert(ctx, req, nil))

	result, err := store.UpdateStatusIfPending(ctx, req.ID, social.StatusAccepted, nil, time.Now().UnixNano(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Matched)
	require.Equal(t, int64(1), result.Modified)

	// second call: status is no longer PENDING, so it matches but doesn't modify.
	result2, err := store.UpdateStatusIfPending(ctx, req.ID, social.StatusDeclined, nil, time.Now().UnixNano(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), result2.Matched)
	require.Equal(t, int64(0), result2.Modified)
}

func TestFriendRequestStore_UpdateStatusIfPendingOnMissingIDMatchesNothing(t *testing.T) {
	store := NewFriendRequestStore()
	result, err := store.UpdateStatusIfPending(context.Background(), social.RequestID(999), social.StatusAccepted, nil, time.Now().UnixNano(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Matched)
}

func TestFriendRequestStore_DeleteExpiredOnlyTouchesPendingPastThreshold(t *testing.T) {
	store := NewFriendRequestStore()
	ctx := context.Background()
	old := social.FriendRequest{ID: 1, RequesterID: 1, RecipientID: 2, Status: social.StatusPending, CreationDate: time.Now().Add(-48 * time.Hour)}
	fresh := social.FriendRequest{ID: 2, RequesterID: 1, RecipientID: 3, Status: social.StatusPending, CreationDate: time.Now()}
	accepted := social.FriendRequest{ID: 3, RequesterID: 1, RecipientID: 4, Status: social.StatusAccepted, CreationDate: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.Insert(ctx, old, nil))
	require.NoError(t, store.Insert(ctx, fresh, nil))
	require.NoError(t, store.Insert(ctx, accepted, nil))

	result, err := store.DeleteExpired(ctx, time.Now().Add(-24*time.Hour).UnixNano())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Deleted)

	_, found, _ := store.FindByID(ctx, old.ID, social.ProjectStatusOnly)
	require.False(t, found)
	_, found, _ = store.FindByID(ctx, fresh.ID, social.ProjectStatusOnly)
	require.True(t, found)
	_, found, _ = store.FindByID(ctx, accepted.ID, social.ProjectStatusOnly)
	require.True(t, found)
}

func TestRelationshipGroupMemberStore_InsertAllOfSameTypeToleratesDuplicates(t *testing.T) {
	store := NewRelationshipGroupMemberStore()
	ctx := context.Background()
	m := social.RelationshipGroupMember{OwnerID: 1, GroupIndex: 5, RelatedUserID: 2, JoinDate: time.Now()}
	require.NoError(t, store.InsertAllOfSameType(ctx, []social.RelationshipGroupMember{m}))
	require.NoError(t, store.InsertAllOfSameType(ctx, []social.RelationshipGroupMember{m}), "bulk insert must tolerate duplicate-key rows per the move idiom")

	members, err := store.FindMembers(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestRelationshipStore_FailNextFriendTwoUsersThenRecovers(t *testing.T) {
	store := NewRelationshipStore()
	store.FailNextFriendTwoUsers(1)

	_, _, err := store.FriendTwoUsers(context.Background(), 1, 2, nil)
	require.True(t, social.IsTransientTransaction(err))

	_, _, err = store.FriendTwoUsers(context.Background(), 1, 2, nil)
	require.NoError(t, err)
}
