// Package memory provides an in-process, mutex-guarded implementation of
// every store interface social declares, grounded on friendit's
// ConcurrentMemoryUserRepository. It backs this module's own tests and is
// a reasonable starting point for a caller's own unit tests.
package memory

import (
	"context"
	"sort"
	"time"

	"sync"

	"github.com/socialgraph/core"
)

type memSession struct{}

func (memSession) session() {}

// Session is the only Session value this adapter ever produces; the
// in-memory store has no connection or transaction handle to carry, so
// FriendRequestStore.InTransaction passes this same marker to fn.
var Session social.Session = memSession{}

// FriendRequestStore is an in-memory social.FriendRequestStore.
type FriendRequestStore struct {
	mu   sync.Mutex
	byID map[social.RequestID]social.FriendRequest
}

func NewFriendRequestStore() *FriendRequestStore {
	return &FriendRequestStore{byID: make(map[social.RequestID]social.FriendRequest)}
}

func (s *FriendRequestStore) Insert(ctx context.Context, req social.FriendRequest, sess social.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[req.ID]; exists {
		return &social.DuplicateKeyError{}
	}
	s.byID[req.ID] = req
	return nil
}

func (s *FriendRequestStore) FindByID(ctx context.Context, id social.RequestID, proj social.RequestProjection) (social.FriendRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	return req, ok, nil
}

func (s *FriendRequestStore) FindBySender(ctx context.Context, requesterID social.UserID) ([]social.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []social.FriendRequest
	for _, r := range s.byID {
		if r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *FriendRequestStore) FindByRecipient(ctx context.Context, recipientID social.UserID) ([]social.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []social.FriendRequest
	for _, r := range s.byID {
		if r.RecipientID == recipientID {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *FriendRequestStore) FindPending(ctx context.Context, requesterID, recipientID social.UserID) (social.FriendRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest social.FriendRequest
	found := false
	for _, r := range s.byID {
		if r.RequesterID == requesterID && r.RecipientID == recipientID {
			if !found || r.CreationDate.After(latest.CreationDate) {
				latest = r
				found = true
			}
		}
	}
	return latest, found, nil
}

func (s *FriendRequestStore) UpdateStatusIfPending(ctx context.Context, id social.RequestID, newStatus social.FriendRequestStatus, reason *string, responseDateUnixNanos int64, sess social.Session) (social.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.byID[id]
	if !ok {
		return social.UpdateResult{}, nil
	}
	if req.Status != social.StatusPending {
		return social.UpdateResult{Matched: 1, Modified: 0}, nil
	}

	req.Status = newStatus
	req.Reason = reason
	t := time.Unix(0, responseDateUnixNanos)
	req.ResponseDate = &t
	s.byID[id] = req
	return social.UpdateResult{Matched: 1, Modified: 1}, nil
}

func (s *FriendRequestStore) BatchUpdate(ctx context.Context, ids []social.RequestID, fields social.FriendRequestFieldSet) (social.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result social.UpdateResult
	for _, id := range ids {
		req, ok := s.byID[id]
		if !ok {
			continue
		}
		result.Matched++
		modified := false
		if fields.Status != nil {
			req.Status = *fields.Status
			modified = true
		}
		if fields.Content != nil {
			req.Content = *fields.Content
			modified = true
		}
		if fields.Reason != nil {
			req.Reason = fields.Reason
			modified = true
		}
		if fields.ResponseDate != nil {
			t := time.Unix(0, *fields.ResponseDate)
			req.ResponseDate = &t
			modified = true
		}
		if modified {
			result.Modified++
			s.byID[id] = req
		}
	}
	return result, nil
}

func (s *FriendRequestStore) DeleteByIDs(ctx context.Context, ids []social.RequestID) (social.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result social.DeleteResult
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			delete(s.byID, id)
			result.Matched++
			result.Deleted++
		}
	}
	return result, nil
}

func (s *FriendRequestStore) DeleteExpired(ctx context.Context, olderThanCreationUnixNanos int64) (social.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result social.DeleteResult
	for id, r := range s.byID {
		if r.Status == social.StatusPending && r.CreationDate.UnixNano() < olderThanCreationUnixNanos {
			delete(s.byID, id)
			result.Matched++
			result.Deleted++
		}
	}
	return result, nil
}

// InTransaction snapshots byID before running fn and restores it if fn
// returns an error, so a caller retrying after a transient failure (for
// example a RelationshipStore.FriendTwoUsers error injected by
// FailNextFriendTwoUsers) sees pre-transaction state rather than the
// partial mutations of the failed attempt — matching what
// adapters/mongostore's session.WithTransaction and adapters/pgstore's
// tx.Rollback give the real stores.
func (s *FriendRequestStore) InTransaction(ctx context.Context, fn func(ctx context.Context, sess social.Session) (any, error)) (any, error) {
	s.mu.Lock()
	snapshot := make(map[social.RequestID]social.FriendRequest, len(s.byID))
	for k, v := range s.byID {
		snapshot[k] = v
	}
	s.mu.Unlock()

	result, err := fn(ctx, Session)
	if err != nil {
		s.mu.Lock()
		s.byID = snapshot
		s.mu.Unlock()
		return nil, err
	}
	return result, nil
}

func sortByID(reqs []social.FriendRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
}
