package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	social "github.com/socialgraph/core"
	"github.com/socialgraph/core/adapters/memory"
)

func newTestFriendRequestService(t *testing.T, cfg social.Config) (social.FriendRequestService, *memory.RelationshipStore) {
	t.Helper()
	store := memory.NewFriendRequestStore()
	ids := memory.NewIDGenerator()
	ver := memory.NewVersionRegistry()
	rel := memory.NewRelationshipStore()
	cfgStore := social.NewConfigStore(cfg)

	svc := social.NewFriendRequestService(store, ids, ver, cfgStore, func() social.RelationshipStore { return rel }, zerolog.Nop())
	return svc, rel
}

func TestAuthAndCreateRequest_RejectsSelfRequest(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	_, err := svc.AuthAndCreateRequest(context.Background(), social.UserID(1), social.UserID(1), "hi", nil)
	require.Error(t, err)
	code, ok := social.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, social.CodeIllegalArgument, code)
}

func TestAuthAndCreateRequest_RejectsWhenRecipientHasBlockedRequester(t *testing.T) {
	svc, rel := newTestFriendRequestService(t, social.NewConfig())
	rel.Block(social.UserID(2), social.UserID(1))

	_, err := svc.AuthAndCreateRequest(context.Background(), social.UserID(1), social.UserID(2), "hi", nil)
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeBlockedUserToSend, code)
}

func TestAuthAndCreateRequest_RejectsDuplicatePending(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	_, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	_, err = svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi again", nil)
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeCreateExisting, code)
}

func TestAuthAndCreateRequest_AllowsResendAfterDeclineWhenConfigured(t *testing.T) {
	cfg := social.NewConfig(social.WithAllowSendAfterDeclinedOrIgnoredOrExpired(true))
	svc, _ := newTestFriendRequestService(t, cfg)
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	_, err = svc.AuthAndHandleRequest(ctx, social.UserID(2), req.ID, social.ActionDecline, nil)
	require.NoError(t, err)

	_, err = svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi again", nil)
	require.NoError(t, err)
}

func TestAuthAndCreateRequest_RejectsResendAfterDeclineWhenNotConfigured(t *testing.T) {
	cfg := social.NewConfig(social.WithAllowSendAfterDeclinedOrIgnoredOrExpired(false))
	svc, _ := newTestFriendRequestService(t, cfg)
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	_, err = svc.AuthAndHandleRequest(ctx, social.UserID(2), req.ID, social.ActionDecline, nil)
	require.NoError(t, err)

	_, err = svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi again", nil)
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeCreateExisting, code)
}

func TestAuthAndRecallRequest_NonSenderGetsSameCodeAsNotFound(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	errNotFound := svc.AuthAndRecallRequest(ctx, social.UserID(1), social.RequestID(999999))
	errNotSender := svc.AuthAndRecallRequest(ctx, social.UserID(2), req.ID)

	codeNotFound, _ := social.CodeOf(errNotFound)
	codeNotSender, _ := social.CodeOf(errNotSender)
	require.Equal(t, codeNotFound, codeNotSender, "existence must not leak: same code for not-found and not-the-sender")
	require.Equal(t, social.CodeNotSenderToRecall, codeNotFound)
}

func TestAuthAndRecallRequest_SucceedsForSenderOnPending(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	require.NoError(t, svc.AuthAndRecallRequest(ctx, social.UserID(1), req.ID))

	err = svc.AuthAndRecallRequest(ctx, social.UserID(1), req.ID)
	require.Error(t, err, "recalling a non-pending request must fail")
}

func TestAuthAndHandleRequest_AcceptPlacesBothUsersInDefaultGroup(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	result, err := svc.AuthAndHandleRequest(ctx, social.UserID(2), req.ID, social.ActionAccept, nil)
	require.NoError(t, err)
	require.Equal(t, social.StatusAccepted, result.Request.Status)
	require.Equal(t, social.DefaultIndex, result.OwnerGroup)
	require.Equal(t, social.DefaultIndex, result.PeerGroup)
}

func TestAuthAndHandleRequest_AcceptRetriesTransientTransactionErrors(t *testing.T) {
	svc, rel := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	req, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	rel.FailNextFriendTwoUsers(2) // fewer than the policy's max attempts

	_, err = svc.AuthAndHandleRequest(ctx, social.UserID(2), req.ID, social.ActionAccept, nil)
	require.NoError(t, err, "acceptInTransaction must recover from transient errors within the retry budget")
}

func TestQueryRequestsWithVersion_NoContentWhenEmpty(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	_, err := svc.QueryRequestsWithVersion(context.Background(), social.UserID(1), true, nil)
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeNoContent, code)
}

func TestQueryRequestsWithVersion_AlreadyUpToDate(t *testing.T) {
	svc, _ := newTestFriendRequestService(t, social.NewConfig())
	ctx := context.Background()

	_, err := svc.AuthAndCreateRequest(ctx, social.UserID(1), social.UserID(2), "hi", nil)
	require.NoError(t, err)

	first, err := svc.QueryRequestsWithVersion(ctx, social.UserID(1), true, nil)
	require.NoError(t, err)
	require.Len(t, first.Requests, 1)

	future := first.Version.Add(time.Second)
	_, err = svc.QueryRequestsWithVersion(ctx, social.UserID(1), true, &future)
	require.Error(t, err)
	code, _ := social.CodeOf(err)
	require.Equal(t, social.CodeAlreadyUpToDate, code)
}
