package social_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	social "github.com/socialgraph/core"
	"github.com/socialgraph/core/adapters/memory"
)

func newTestRelationshipGroupService(t *testing.T) social.RelationshipGroupService {
	t.Helper()
	groups := memory.NewRelationshipGroupStore()
	members := memory.NewRelationshipGroupMemberStore()
	cfgStore := social.NewConfigStore(social.NewConfig())
	ver := memory.NewVersionRegistry()

	return social.NewRelationshipGroupService(groups, members, func() social.RelationshipStore { return nil }, cfgStore, ver, zerolog.Nop())
}

func TestCreateGroup_WithExplicitIndex(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	g, err := svc.CreateGroup(context.Background(), social.UserID(1), "college", social.WithGroupIndex(social.GroupIndex(42)))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(42), g.Index)
	require.Equal(t, "college", g.Name)
}

func TestCreateGroup_WithRandomIndexAvoidsCollision(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, social.UserID(1), "a")
	require.NoError(t, err)

	second, err := svc.CreateGroup(ctx, social.UserID(1), "b")
	require.NoError(t, err)

	require.NotEqual(t, first.Index, second.Index)
	require.NotEqual(t, social.DefaultIndex, first.Index)
	require.NotEqual(t, social.DefaultIndex, second.Index)
}

func TestUpsertGroupMember_InsertOnlyCreatesAndBumps(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	idx, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(5), idx)

	// Second identical insert is a no-op, not an error, and returns the
	// zero index signalling "already present".
	idx2, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(0), idx2)
}

func TestUpsertGroupMember_SameIndexNewAndDeleteIsNoop(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	idx, err := svc.UpsertGroupMember(context.Background(), social.UserID(1), social.UserID(2),
		social.WithNewIndex(social.GroupIndex(5)), social.WithDeleteIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(0), idx)
}

func TestUpsertGroupMember_NewAndDeleteMoves(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)

	idx, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2),
		social.WithNewIndex(social.GroupIndex(9)), social.WithDeleteIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(9), idx)
}

func TestUpsertGroupMember_DeleteOnlyFromDefaultIsNoop(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	idx, err := svc.UpsertGroupMember(context.Background(), social.UserID(1), social.UserID(2), social.WithDeleteIndex(social.DefaultIndex))
	require.NoError(t, err)
	require.Equal(t, social.GroupIndex(0), idx)
}

func TestUpsertGroupMember_DeleteOnlyMovesToDefault(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)

	idx, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithDeleteIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	require.Equal(t, social.DefaultIndex, idx)
}

func TestDeleteGroupAndMoveMembers_ForbidsDeletingDefault(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	err := svc.DeleteGroupAndMoveMembers(context.Background(), social.UserID(1), social.DefaultIndex, social.GroupIndex(5))
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeIllegalArgument, code)
}

func TestDeleteGroupAndMoveMembers_MirrorsMembersThenDeletesGroup(t *testing.T) {
	groups := memory.NewRelationshipGroupStore()
	members := memory.NewRelationshipGroupMemberStore()
	cfgStore := social.NewConfigStore(social.NewConfig())
	ver := memory.NewVersionRegistry()
	svc := social.NewRelationshipGroupService(groups, members, func() social.RelationshipStore { return nil }, cfgStore, ver, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	_, err = svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(3), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGroupAndMoveMembers(ctx, social.UserID(1), social.GroupIndex(5), social.GroupIndex(7)))

	idxs2, err := members.FindGroupIndexes(ctx, social.UserID(1), social.UserID(2))
	require.NoError(t, err)
	require.Equal(t, []social.GroupIndex{social.GroupIndex(7)}, idxs2)

	idxs5, err := members.FindGroupIndexes(ctx, social.UserID(1), social.UserID(2))
	require.NoError(t, err)
	for _, idx := range idxs5 {
		require.NotEqual(t, social.GroupIndex(5), idx, "source group's membership rows must be gone after the move")
	}
}

func TestDeleteRelatedUsersFromAllGroups_SingleOwner(t *testing.T) {
	groups := memory.NewRelationshipGroupStore()
	members := memory.NewRelationshipGroupMemberStore()
	cfgStore := social.NewConfigStore(social.NewConfig())
	ver := memory.NewVersionRegistry()
	svc := social.NewRelationshipGroupService(groups, members, func() social.RelationshipStore { return nil }, cfgStore, ver, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(2), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)

	result, err := svc.DeleteRelatedUsersFromAllGroups(ctx, []social.MemberOwnerPair{
		{OwnerID: social.UserID(1), RelatedUserID: social.UserID(2)},
	}, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Deleted)

	remaining, err := members.FindGroupIndexes(ctx, social.UserID(1), social.UserID(2))
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestDeleteRelatedUsersFromAllGroups_MultipleOwnersFanOutAndSum(t *testing.T) {
	groups := memory.NewRelationshipGroupStore()
	members := memory.NewRelationshipGroupMemberStore()
	cfgStore := social.NewConfigStore(social.NewConfig())
	ver := memory.NewVersionRegistry()
	svc := social.NewRelationshipGroupService(groups, members, func() social.RelationshipStore { return nil }, cfgStore, ver, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(9), social.WithNewIndex(social.GroupIndex(5)))
	require.NoError(t, err)
	_, err = svc.UpsertGroupMember(ctx, social.UserID(2), social.UserID(9), social.WithNewIndex(social.GroupIndex(6)))
	require.NoError(t, err)

	result, err := svc.DeleteRelatedUsersFromAllGroups(ctx, []social.MemberOwnerPair{
		{OwnerID: social.UserID(1), RelatedUserID: social.UserID(9)},
		{OwnerID: social.UserID(2), RelatedUserID: social.UserID(9)},
	}, true)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Deleted)
}

func TestRenameGroup_SucceedsForExistingAndMissingGroup(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, social.UserID(1), "college", social.WithGroupIndex(social.GroupIndex(5)))
	require.NoError(t, err)

	require.NoError(t, svc.RenameGroup(ctx, social.UserID(1), g.Index, "university"))
	require.NoError(t, svc.RenameGroup(ctx, social.UserID(1), social.GroupIndex(999), "nonexistent group"))
}

func TestListGroups_PagesAndCounts(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateGroup(ctx, social.UserID(1), "group", social.WithGroupIndex(social.GroupIndex(i+1)))
		require.NoError(t, err)
	}

	page1, err := svc.ListGroups(ctx, social.UserID(1), 1, 2)
	require.NoError(t, err)
	require.Len(t, page1.Data, 2)
	require.Equal(t, 3, page1.TotalCount)
	require.True(t, page1.HasNext)

	page2, err := svc.ListGroups(ctx, social.UserID(1), 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Data, 1)
	require.False(t, page2.HasNext)
}

func TestListGroupMembers_PagesForwardByCursor(t *testing.T) {
	svc := newTestRelationshipGroupService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.UpsertGroupMember(ctx, social.UserID(1), social.UserID(10+i), social.WithNewIndex(social.GroupIndex(5)))
		require.NoError(t, err)
	}

	first, err := svc.ListGroupMembers(ctx, social.UserID(1), social.GroupIndex(5), nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.NotNil(t, first.NextCursor)

	second, err := svc.ListGroupMembers(ctx, social.UserID(1), social.GroupIndex(5), first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
}
