package social

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/socialgraph/core/internal/retrypolicy"
)

// FriendRequestService is the Friend-Request Service (C4): request
// lifecycle, authorization, and projection-time expiry.
type FriendRequestService interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (FriendRequest, error)
	AuthAndCreateRequest(ctx context.Context, requesterID, recipientID UserID, content string, creationDate *time.Time) (FriendRequest, error)
	AuthAndRecallRequest(ctx context.Context, caller UserID, requestID RequestID) error
	AuthAndHandleRequest(ctx context.Context, caller UserID, requestID RequestID, action HandleAction, reason *string) (HandleResult, error)
	QueryRequestsWithVersion(ctx context.Context, userID UserID, areSentByUser bool, lastUpdatedDate *time.Time) (QueryResult, error)

	BatchUpdate(ctx context.Context, ids []RequestID, fields FriendRequestFieldSet) (UpdateResult, error)
	DeleteByIDs(ctx context.Context, ids []RequestID) (DeleteResult, error)
	DeleteExpiredRequestsWhenCronTriggered(ctx context.Context)
}

// HandleAction is the caller's disposition of a pending request.
type HandleAction string

const (
	ActionAccept  HandleAction = "ACCEPT"
	ActionDecline HandleAction = "DECLINE"
	ActionIgnore  HandleAction = "IGNORE"
)

// HandleResult reports the outcome of AuthAndHandleRequest's ACCEPT path:
// the updated request plus the group index each side's new relationship
// landed in, as produced by RelationshipStore.FriendTwoUsers.
type HandleResult struct {
	Request       FriendRequest
	OwnerGroup    GroupIndex
	PeerGroup     GroupIndex
}

// CreateRequestInput is the admin-path createRequest's full input, every
// field but RequesterID/RecipientID optional per §4.1.
type CreateRequestInput struct {
	ID           *RequestID
	RequesterID  UserID
	RecipientID  UserID
	Content      string
	Status       *FriendRequestStatus
	CreationDate *time.Time
	ResponseDate *time.Time
	Reason       *string
	Session      Session
}

// QueryResult is queryRequestsWithVersion's success shape: the matching
// requests (post-projection) plus the server-side version the client
// should remember for its next incremental sync.
type QueryResult struct {
	Requests []FriendRequestWireView
	Version  time.Time
}

type friendRequestService struct {
	store FriendRequestStore
	ids   IDGenerator
	ver   VersionRegistry
	cfg   *ConfigStore
	log   zerolog.Logger
	relationshipTarget func() RelationshipStore
	retry *retrypolicy.Policy
}

// NewFriendRequestService wires the request service. relationshipStore
// is late-bound (§9) and invoked on each use: by AuthAndCreateRequest for
// the HasBlocked check and inside the ACCEPT transaction for
// FriendTwoUsers.
func NewFriendRequestService(
	store FriendRequestStore,
	ids IDGenerator,
	ver VersionRegistry,
	cfg *ConfigStore,
	relationshipStore func() RelationshipStore,
	log zerolog.Logger,
) FriendRequestService {
	return &friendRequestService{
		store:              store,
		ids:                ids,
		ver:                ver,
		cfg:                cfg,
		log:                log,
		relationshipTarget: relationshipStore,
		retry:              retrypolicy.New(retrypolicy.DefaultConfig()),
	}
}

func (s *friendRequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (FriendRequest, error) {
	cfg := s.cfg.Load()

	if in.RequesterID == in.RecipientID {
		return FriendRequest{}, newErr(CodeIllegalArgument, "requesterId must differ from recipientId", nil)
	}
	if cfg.MaxContentLength > 0 && len(in.Content) > cfg.MaxContentLength {
		return FriendRequest{}, newErr(CodeIllegalArgument, "content exceeds maxContentLength", nil)
	}
	if in.Reason != nil && cfg.MaxResponseReasonLength > 0 && len(*in.Reason) > cfg.MaxResponseReasonLength {
		return FriendRequest{}, newErr(CodeIllegalArgument, "reason exceeds maxResponseReasonLength", nil)
	}

	now := time.Now()

	id := in.ID
	if id == nil {
		generated, err := s.ids.NextLargeGapID(ctx, "friendRequest")
		if err != nil {
			return FriendRequest{}, fmt.Errorf("generate request id: %w", err)
		}
		rid := RequestID(generated)
		id = &rid
	}

	creationDate := now
	if in.CreationDate != nil {
		if in.CreationDate.After(now) {
			creationDate = now
		} else {
			creationDate = *in.CreationDate
		}
	}

	status := StatusPending
	if in.Status != nil {
		status = *in.Status
	}

	responseDate := in.ResponseDate
	if responseDate == nil {
		responseDate = defaultResponseDate(status, creationDate, cfg.FriendRequestExpireAfter, now)
	}

	req := FriendRequest{
		ID:           *id,
		RequesterID:  in.RequesterID,
		RecipientID:  in.RecipientID,
		Content:      in.Content,
		Status:       status,
		Reason:       in.Reason,
		CreationDate: creationDate,
		ResponseDate: responseDate,
	}

	if err := s.store.Insert(ctx, req, in.Session); err != nil {
		return FriendRequest{}, err
	}

	bumpVersionBestEffort(ctx, s.ver, s.log, req.RecipientID, StreamReceivedRequests, now)
	bumpVersionBestEffort(ctx, s.ver, s.log, req.RequesterID, StreamSentRequests, now)

	return req, nil
}

func (s *friendRequestService) AuthAndCreateRequest(ctx context.Context, requesterID, recipientID UserID, content string, creationDate *time.Time) (FriendRequest, error) {
	cfg := s.cfg.Load()

	rel := s.relationshipTarget()
	if rel != nil {
		blocked, err := rel.HasBlocked(ctx, recipientID, requesterID)
		if err != nil {
			return FriendRequest{}, err
		}
		if blocked {
			return FriendRequest{}, newErr(CodeBlockedUserToSend, "", nil)
		}
	}

	existing, found, err := s.store.FindPending(ctx, requesterID, recipientID)
	if err != nil {
		return FriendRequest{}, err
	}
	if found {
		prohibited := existing.Status == StatusPending
		if !prohibited && cfg.AllowSendRequestAfterDeclinedOrIgnoredOrExpired == false {
			switch existing.Status {
			case StatusDeclined, StatusIgnored:
				prohibited = true
			}
			if !prohibited && IsProjectedExpired(existing, cfg.FriendRequestExpireAfter, time.Now()) {
				prohibited = true
			}
		}
		if prohibited {
			return FriendRequest{}, newErr(CodeCreateExisting, "", nil)
		}
	}

	return s.CreateRequest(ctx, CreateRequestInput{
		RequesterID:  requesterID,
		RecipientID:  recipientID,
		Content:      content,
		CreationDate: creationDate,
	})
}

func (s *friendRequestService) AuthAndRecallRequest(ctx context.Context, caller UserID, requestID RequestID) error {
	cfg := s.cfg.Load()
	if !cfg.AllowRecallPendingFriendRequestBySender {
		return newErr(CodeRecallingDisabled, "", nil)
	}

	req, found, err := s.store.FindByID(ctx, requestID, ProjectStatusAndCreation)
	if err != nil {
		return err
	}
	if !found || req.RequesterID != caller {
		// existence non-leakage: identical code for "no such request"
		// and "caller is not the requester" (§7, §9).
		return newErr(CodeNotSenderToRecall, "", nil)
	}

	now := time.Now()
	status, _ := ProjectStatus(req, cfg.FriendRequestExpireAfter, now)
	if status != StatusPending {
		return newErr(CodeRecallNonPending, string(status), nil)
	}

	result, err := s.store.UpdateStatusIfPending(ctx, requestID, StatusCanceled, nil, now.UnixNano(), nil)
	if err != nil {
		return err
	}
	if result.Modified == 0 {
		// race lost to a concurrent admin delete or handle.
		return newErr(CodeRecallNonPending, string(StatusPending), nil)
	}

	bumpVersionBestEffort(ctx, s.ver, s.log, req.RequesterID, StreamSentRequests, now)
	bumpVersionBestEffort(ctx, s.ver, s.log, req.RecipientID, StreamReceivedRequests, now)
	return nil
}

func (s *friendRequestService) AuthAndHandleRequest(ctx context.Context, caller UserID, requestID RequestID, action HandleAction, reason *string) (HandleResult, error) {
	cfg := s.cfg.Load()

	req, found, err := s.store.FindByID(ctx, requestID, ProjectStatusAndCreation)
	if err != nil {
		return HandleResult{}, err
	}
	if !found || req.RecipientID != caller {
		return HandleResult{}, newErr(CodeNotRecipientToUpdate, "", nil)
	}

	now := time.Now()
	status, _ := ProjectStatus(req, cfg.FriendRequestExpireAfter, now)
	if status != StatusPending {
		return HandleResult{}, newErr(CodeUpdateNonPending, string(status), nil)
	}

	switch action {
	case ActionAccept:
		return s.acceptInTransaction(ctx, req, reason, now)
	case ActionDecline:
		return s.updatePendingStatus(ctx, requestID, req, StatusDeclined, reason, now)
	case ActionIgnore:
		return s.updatePendingStatus(ctx, requestID, req, StatusIgnored, reason, now)
	default:
		return HandleResult{}, newErr(CodeIllegalArgument, "unknown action: "+string(action), nil)
	}
}

func (s *friendRequestService) updatePendingStatus(ctx context.Context, id RequestID, req FriendRequest, newStatus FriendRequestStatus, reason *string, now time.Time) (HandleResult, error) {
	if newStatus == StatusPending {
		return HandleResult{}, newErr(CodeIllegalArgument, "cannot transition to PENDING", nil)
	}

	result, err := s.store.UpdateStatusIfPending(ctx, id, newStatus, reason, now.UnixNano(), nil)
	if err != nil {
		return HandleResult{}, err
	}
	if result.Modified == 0 {
		return HandleResult{}, newErr(CodeUpdateNonPending, string(StatusPending), nil)
	}

	bumpVersionBestEffort(ctx, s.ver, s.log, req.RecipientID, StreamReceivedRequests, now)

	req.Status = newStatus
	req.Reason = reason
	req.ResponseDate = &now
	return HandleResult{Request: req}, nil
}

// acceptInTransaction implements the one transactional path in this core
// (§5): the CAS on the request and the relationship-store mutation share
// one session, retried on transient transaction errors per a bounded
// policy.
func (s *friendRequestService) acceptInTransaction(ctx context.Context, req FriendRequest, reason *string, now time.Time) (HandleResult, error) {
	rel := s.relationshipTarget()
	if rel == nil {
		return HandleResult{}, fmt.Errorf("relationship store not configured")
	}

	raw, err := s.retry.Do(ctx, IsTransientTransaction, func(ctx context.Context) (any, error) {
		return s.store.InTransaction(ctx, func(ctx context.Context, sess Session) (any, error) {
			result, err := s.store.UpdateStatusIfPending(ctx, req.ID, StatusAccepted, reason, now.UnixNano(), sess)
			if err != nil {
				return nil, err
			}
			if result.Modified == 0 {
				return nil, newErr(CodeUpdateNonPending, string(StatusPending), nil)
			}

			ownerGroup, peerGroup, err := rel.FriendTwoUsers(ctx, req.RequesterID, req.RecipientID, sess)
			if err != nil {
				return nil, err
			}
			return HandleResult{Request: req, OwnerGroup: ownerGroup, PeerGroup: peerGroup}, nil
		})
	})
	if err != nil {
		return HandleResult{}, err
	}

	res := raw.(HandleResult)
	res.Request.Status = StatusAccepted
	res.Request.Reason = reason
	res.Request.ResponseDate = &now

	bumpVersionBestEffort(ctx, s.ver, s.log, req.RecipientID, StreamReceivedRequests, now)
	return res, nil
}

func (s *friendRequestService) QueryRequestsWithVersion(ctx context.Context, userID UserID, areSentByUser bool, lastUpdatedDate *time.Time) (QueryResult, error) {
	stream := StreamReceivedRequests
	if areSentByUser {
		stream = StreamSentRequests
	}

	version, err := s.ver.Get(ctx, userID, stream)
	if err != nil {
		return QueryResult{}, err
	}
	if lastUpdatedDate != nil && !lastUpdatedDate.Before(version) {
		return QueryResult{}, newErr(CodeAlreadyUpToDate, "", nil)
	}

	var requests []FriendRequest
	if areSentByUser {
		requests, err = s.store.FindBySender(ctx, userID)
	} else {
		requests, err = s.store.FindByRecipient(ctx, userID)
	}
	if err != nil {
		return QueryResult{}, err
	}
	if len(requests) == 0 {
		return QueryResult{}, newErr(CodeNoContent, "", nil)
	}

	cfg := s.cfg.Load()
	now := time.Now()
	views := mapSlice(requests, func(r FriendRequest) FriendRequestWireView {
		return ToProto(r, cfg.FriendRequestExpireAfter, now)
	})

	return QueryResult{Requests: views, Version: version}, nil
}

func (s *friendRequestService) BatchUpdate(ctx context.Context, ids []RequestID, fields FriendRequestFieldSet) (UpdateResult, error) {
	return s.store.BatchUpdate(ctx, ids, fields)
}

func (s *friendRequestService) DeleteByIDs(ctx context.Context, ids []RequestID) (DeleteResult, error) {
	return s.store.DeleteByIDs(ctx, ids)
}

// DeleteExpiredRequestsWhenCronTriggered is the handler a TaskScheduler
// invokes on the cluster leader. Expiry correctness never depends on
// this running (§9); it is optional housekeeping only.
func (s *friendRequestService) DeleteExpiredRequestsWhenCronTriggered(ctx context.Context) {
	cfg := s.cfg.Load()
	if !cfg.DeleteExpiredRequestsWhenCronTriggered || cfg.FriendRequestExpireAfter <= 0 {
		return
	}
	threshold := time.Now().Add(-cfg.FriendRequestExpireAfter)
	if _, err := s.store.DeleteExpired(ctx, threshold.UnixNano()); err != nil {
		s.log.Warn().Err(err).Msg("expired friend request cleanup failed")
	}
}
