package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/socialgraph/core"
)

type groupKey struct {
	owner social.UserID
	index social.GroupIndex
}

// RelationshipGroupStore is an in-memory social.RelationshipGroupStore.
type RelationshipGroupStore struct {
	mu     sync.Mutex
	groups map[groupKey]social.RelationshipGroup
}

func NewRelationshipGroupStore() *RelationshipGroupStore {
	return &RelationshipGroupStore{groups: make(map[groupKey]social.RelationshipGroup)}
}

func (s *RelationshipGroupStore) Insert(ctx context.Context, g social.RelationshipGroup, sess social.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupKey{g.OwnerID, g.Index}
	if _, exists := s.groups[key]; exists {
		return &social.DuplicateKeyError{}
	}
	s.groups[key] = g
	return nil
}

func (s *RelationshipGroupStore) FindByOwnerAndIndex(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.RelationshipGroup, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupKey{owner, idx}]
	return g, ok, nil
}

func (s *RelationshipGroupStore) FindByOwner(ctx context.Context, owner social.UserID) ([]social.RelationshipGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []social.RelationshipGroup
	for k, g := range s.groups {
		if k.owner == owner {
			out = append(out, g)
		}
	}
	// map iteration order is randomized per call; callers paging through
	// this result across repeated calls need a stable order.
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *RelationshipGroupStore) CountByOwner(ctx context.Context, owner social.UserID) (int64, error) {
	groups, _ := s.FindByOwner(ctx, owner)
	return int64(len(groups)), nil
}

func (s *RelationshipGroupStore) UpdateName(ctx context.Context, owner social.UserID, idx social.GroupIndex, name string) (social.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupKey{owner, idx}
	g, ok := s.groups[key]
	if !ok {
		return social.UpdateResult{}, nil
	}
	g.Name = name
	s.groups[key] = g
	return social.UpdateResult{Matched: 1, Modified: 1}, nil
}

func (s *RelationshipGroupStore) BatchUpdate(ctx context.Context, keys []social.GroupKey, name *string, creationDate *int64) (social.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result social.UpdateResult
	for _, k := range keys {
		key := groupKey{k.OwnerID, k.Index}
		g, ok := s.groups[key]
		if !ok {
			continue
		}
		result.Matched++
		modified := false
		if name != nil {
			g.Name = *name
			modified = true
		}
		if creationDate != nil {
			g.CreationDate = time.Unix(0, *creationDate)
			modified = true
		}
		if modified {
			result.Modified++
			s.groups[key] = g
		}
	}
	return result, nil
}

func (s *RelationshipGroupStore) Delete(ctx context.Context, owner social.UserID, idx social.GroupIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupKey{owner, idx})
	return nil
}

type memberKey struct {
	owner   social.UserID
	index   social.GroupIndex
	related social.UserID
}

// RelationshipGroupMemberStore is an in-memory
// social.RelationshipGroupMemberStore.
type RelationshipGroupMemberStore struct {
	mu      sync.Mutex
	members map[memberKey]social.RelationshipGroupMember
}

func NewRelationshipGroupMemberStore() *RelationshipGroupMemberStore {
	return &RelationshipGroupMemberStore{members: make(map[memberKey]social.RelationshipGroupMember)}
}

func (s *RelationshipGroupMemberStore) Upsert(ctx context.Context, m social.RelationshipGroupMember, sess social.Session) (social.AtomicResult[social.RelationshipGroupMember], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{m.OwnerID, m.GroupIndex, m.RelatedUserID}
	if existing, ok := s.members[key]; ok {
		return *social.NewAtomicResult(existing, false), nil
	}
	s.members[key] = m
	return *social.NewAtomicResult(m, true), nil
}

func (s *RelationshipGroupMemberStore) DeleteByKey(ctx context.Context, key social.MemberKey, sess social.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{key.OwnerID, key.GroupIndex, key.RelatedUserID})
	return nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndGroup(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result social.DeleteResult
	for k := range s.members {
		if k.owner == owner && k.index == idx {
			delete(s.members, k)
			result.Matched++
			result.Deleted++
		}
	}
	return result, nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndRelatedUsers(ctx context.Context, owner social.UserID, related []social.UserID, sess social.Session) (social.DeleteResult, error) {
	set := make(map[social.UserID]struct{}, len(related))
	for _, r := range related {
		set[r] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result social.DeleteResult
	for k := range s.members {
		if k.owner != owner {
			continue
		}
		if _, ok := set[k.related]; ok {
			delete(s.members, k)
			result.Matched++
			result.Deleted++
		}
	}
	return result, nil
}

func (s *RelationshipGroupMemberStore) FindMembers(ctx context.Context, owner social.UserID, idx social.GroupIndex) ([]social.RelationshipGroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []social.RelationshipGroupMember
	for k, m := range s.members {
		if k.owner == owner && k.index == idx {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelatedUserID < out[j].RelatedUserID })
	return out, nil
}

func (s *RelationshipGroupMemberStore) FindGroupIndexes(ctx context.Context, owner, related social.UserID) ([]social.GroupIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []social.GroupIndex
	for k := range s.members {
		if k.owner == owner && k.related == related {
			out = append(out, k.index)
		}
	}
	return out, nil
}

func (s *RelationshipGroupMemberStore) InsertAllOfSameType(ctx context.Context, members []social.RelationshipGroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		key := memberKey{m.OwnerID, m.GroupIndex, m.RelatedUserID}
		if _, exists := s.members[key]; exists {
			continue // tolerate duplicate-key, per §4.3
		}
		s.members[key] = m
	}
	return nil
}

// RelationshipStore is an in-memory social.RelationshipStore, sufficient
// for exercising the ACCEPT transaction and block checks in tests.
type RelationshipStore struct {
	mu      sync.Mutex
	blocked map[[2]social.UserID]bool
	failNextFriendTwoUsers int
}

func NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{blocked: make(map[[2]social.UserID]bool)}
}

func (r *RelationshipStore) Block(blocker, blocked social.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[[2]social.UserID{blocker, blocked}] = true
}

// FailNextFriendTwoUsers makes the next n FriendTwoUsers calls return a
// social.TransientTransactionError, for exercising the retry policy.
func (r *RelationshipStore) FailNextFriendTwoUsers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNextFriendTwoUsers = n
}

func (r *RelationshipStore) FriendTwoUsers(ctx context.Context, requesterID, recipientID social.UserID, sess social.Session) (social.GroupIndex, social.GroupIndex, error) {
	r.mu.Lock()
	if r.failNextFriendTwoUsers > 0 {
		r.failNextFriendTwoUsers--
		r.mu.Unlock()
		return 0, 0, &social.TransientTransactionError{}
	}
	r.mu.Unlock()
	return social.DefaultIndex, social.DefaultIndex, nil
}

func (r *RelationshipStore) HasBlocked(ctx context.Context, blockerID, blockedID social.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked[[2]social.UserID{blockerID, blockedID}], nil
}
