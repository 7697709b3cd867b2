package social

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RelationshipGroupService is the Relationship-Group Service (C3): it
// owns named buckets of confirmed relationships and their members.
type RelationshipGroupService interface {
	CreateGroup(ctx context.Context, owner UserID, name string, opts ...CreateGroupOption) (RelationshipGroup, error)
	UpsertGroupMember(ctx context.Context, owner, related UserID, opts ...UpsertMemberOption) (GroupIndex, error)
	Move(ctx context.Context, owner, related UserID, from, to GroupIndex, suppressDuplicate bool, sess Session) error
	DeleteGroupAndMoveMembers(ctx context.Context, owner UserID, deleteIndex, newIndex GroupIndex) error
	DeleteRelatedUsersFromAllGroups(ctx context.Context, keys []MemberOwnerPair, bumpVersion bool) (DeleteResult, error)
	RenameGroup(ctx context.Context, owner UserID, idx GroupIndex, name string) error
	// ListGroups answers the admin "list/count queries" surface named in
	// §4.4: an owner's groups, paged, with the total count alongside.
	ListGroups(ctx context.Context, owner UserID, page, pageSize int) (GroupPage, error)
	// ListGroupMembers answers the "member-id queries" surface named in
	// §4.4 with cursor pagination: a large group's membership can grow
	// without bound, so callers page forward by related-user cursor
	// instead of requesting an ever-larger offset.
	ListGroupMembers(ctx context.Context, owner UserID, idx GroupIndex, cursor *UserID, pageSize int) (MemberPage, error)
}

// MemberOwnerPair names one (owner, relatedUser) pair whose membership
// should be removed from every group of owner, used by
// DeleteRelatedUsersFromAllGroups.
type MemberOwnerPair struct {
	OwnerID       UserID
	RelatedUserID UserID
}

// CreateGroupOption configures CreateGroup.
type CreateGroupOption func(*createGroupConfig)

type createGroupConfig struct {
	index        *GroupIndex
	creationDate *time.Time
	session      Session
}

func WithGroupIndex(idx GroupIndex) CreateGroupOption {
	return func(c *createGroupConfig) { c.index = &idx }
}

func WithGroupCreationDate(t time.Time) CreateGroupOption {
	return func(c *createGroupConfig) { c.creationDate = &t }
}

func WithGroupSession(sess Session) CreateGroupOption {
	return func(c *createGroupConfig) { c.session = sess }
}

// UpsertMemberOption configures UpsertGroupMember.
type UpsertMemberOption func(*upsertMemberConfig)

type upsertMemberConfig struct {
	newIndex    *GroupIndex
	deleteIndex *GroupIndex
	session     Session
}

func WithNewIndex(idx GroupIndex) UpsertMemberOption {
	return func(c *upsertMemberConfig) { c.newIndex = &idx }
}

func WithDeleteIndex(idx GroupIndex) UpsertMemberOption {
	return func(c *upsertMemberConfig) { c.deleteIndex = &idx }
}

func WithMemberSession(sess Session) UpsertMemberOption {
	return func(c *upsertMemberConfig) { c.session = sess }
}

// relationshipStoreProvider resolves the relationship service lazily,
// breaking the circular dependency named in §9: the group service needs
// the relationship service only for operations neither side calls during
// construction, so it accepts a provider rather than an instance.
type relationshipStoreProvider struct {
	once     sync.Once
	resolve  func() RelationshipStore
	resolved RelationshipStore
}

func (p *relationshipStoreProvider) get() RelationshipStore {
	p.once.Do(func() { p.resolved = p.resolve() })
	return p.resolved
}

type relationshipGroupService struct {
	groups  RelationshipGroupStore
	members RelationshipGroupMemberStore
	rel     *relationshipStoreProvider
	cfg     *ConfigStore
	ver     VersionRegistry
	log     zerolog.Logger
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// NewRelationshipGroupService wires the group service. relationshipStore
// is a provider, not an instance, to satisfy the lazy circular-dependency
// requirement in §9 — pass a func that returns your RelationshipStore
// once it exists, e.g. from a sync.Once-guarded accessor on your own
// service registry.
func NewRelationshipGroupService(
	groups RelationshipGroupStore,
	members RelationshipGroupMemberStore,
	relationshipStore func() RelationshipStore,
	cfg *ConfigStore,
	ver VersionRegistry,
	log zerolog.Logger,
) RelationshipGroupService {
	return &relationshipGroupService{
		groups:  groups,
		members: members,
		rel:     &relationshipStoreProvider{resolve: relationshipStore},
		cfg:     cfg,
		ver:     ver,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *relationshipGroupService) randomIndex() GroupIndex {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	// 31-bit non-negative, excluding 0 (reserved for DefaultIndex).
	return GroupIndex(1 + s.rng.Int31n(0x7FFFFFFE))
}

// CreateGroup implements §4.3 createGroup. When idx is absent and no
// session is active, a duplicate-key collision on the random index is
// retried with a fresh index; with a session active, collision is fatal
// because a transaction cannot be resumed after a constraint violation.
func (s *relationshipGroupService) CreateGroup(ctx context.Context, owner UserID, name string, opts ...CreateGroupOption) (RelationshipGroup, error) {
	cfg := &createGroupConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	now := time.Now()
	creationDate := now
	if cfg.creationDate != nil {
		if cfg.creationDate.After(now) {
			creationDate = now
		} else {
			creationDate = *cfg.creationDate
		}
	}

	if cfg.index != nil {
		if !cfg.index.Valid() {
			return RelationshipGroup{}, newErr(CodeIllegalArgument, "group index out of range", nil)
		}
		g := RelationshipGroup{OwnerID: owner, Index: *cfg.index, Name: name, CreationDate: creationDate}
		if err := s.groups.Insert(ctx, g, cfg.session); err != nil {
			return RelationshipGroup{}, err
		}
		return g, nil
	}

	const maxRandomAttempts = 8
	for attempt := 0; attempt < maxRandomAttempts; attempt++ {
		idx := s.randomIndex()
		g := RelationshipGroup{OwnerID: owner, Index: idx, Name: name, CreationDate: creationDate}
		err := s.groups.Insert(ctx, g, cfg.session)
		if err == nil {
			return g, nil
		}
		if !IsDuplicateKey(err) {
			return RelationshipGroup{}, err
		}
		if cfg.session != nil {
			// a transaction cannot be resumed after a constraint
			// violation: duplicate key is fatal here, not retried.
			return RelationshipGroup{}, err
		}
	}
	return RelationshipGroup{}, fmt.Errorf("exhausted random group index attempts for owner %d", owner)
}

// UpsertGroupMember implements the four-case table in §4.3.
func (s *relationshipGroupService) UpsertGroupMember(ctx context.Context, owner, related UserID, opts ...UpsertMemberOption) (GroupIndex, error) {
	cfg := &upsertMemberConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch {
	case cfg.newIndex != nil && cfg.deleteIndex == nil:
		result, err := s.members.Upsert(ctx, RelationshipGroupMember{
			OwnerID: owner, GroupIndex: *cfg.newIndex, RelatedUserID: related, JoinDate: time.Now(),
		}, cfg.session)
		if err != nil {
			return 0, err
		}
		if result.Created {
			s.bumpMembership(ctx, owner)
			return *cfg.newIndex, nil
		}
		return 0, nil

	case cfg.newIndex != nil && cfg.deleteIndex != nil && *cfg.newIndex == *cfg.deleteIndex:
		return 0, nil

	case cfg.newIndex != nil && cfg.deleteIndex != nil:
		if err := s.Move(ctx, owner, related, *cfg.deleteIndex, *cfg.newIndex, true, cfg.session); err != nil {
			return 0, err
		}
		return *cfg.newIndex, nil

	case cfg.newIndex == nil && cfg.deleteIndex != nil && *cfg.deleteIndex == DefaultIndex:
		return 0, nil

	case cfg.newIndex == nil && cfg.deleteIndex != nil:
		if err := s.Move(ctx, owner, related, *cfg.deleteIndex, DefaultIndex, true, cfg.session); err != nil {
			return 0, err
		}
		return DefaultIndex, nil

	default:
		return 0, nil
	}
}

// Move implements §4.3 move: insert into `to` before deleting from
// `from`, so a concurrent reader never observes the member absent from
// every group (§8 invariant).
func (s *relationshipGroupService) Move(ctx context.Context, owner, related UserID, from, to GroupIndex, suppressDuplicate bool, sess Session) error {
	_, err := s.members.Upsert(ctx, RelationshipGroupMember{
		OwnerID: owner, GroupIndex: to, RelatedUserID: related, JoinDate: time.Now(),
	}, sess)
	if err != nil {
		if suppressDuplicate && IsDuplicateKey(err) {
			// already present at `to`; fall through to the delete.
		} else {
			return err
		}
	}

	if err := s.members.DeleteByKey(ctx, MemberKey{OwnerID: owner, GroupIndex: from, RelatedUserID: related}, sess); err != nil {
		return err
	}

	s.bumpGroups(ctx, owner)
	return nil
}

// DeleteGroupAndMoveMembers implements §4.3. Deliberately not
// transactional: the operation is idempotent and recoverable by rerun.
func (s *relationshipGroupService) DeleteGroupAndMoveMembers(ctx context.Context, owner UserID, deleteIndex, newIndex GroupIndex) error {
	if deleteIndex == DefaultIndex {
		return newErr(CodeIllegalArgument, "cannot delete the default group", nil)
	}
	if deleteIndex == newIndex {
		return nil
	}

	members, err := s.members.FindMembers(ctx, owner, deleteIndex)
	if err != nil {
		return err
	}

	mirrored := make([]RelationshipGroupMember, len(members))
	for i, m := range members {
		mirrored[i] = RelationshipGroupMember{OwnerID: owner, GroupIndex: newIndex, RelatedUserID: m.RelatedUserID, JoinDate: m.JoinDate}
	}
	if len(mirrored) > 0 {
		if err := s.members.InsertAllOfSameType(ctx, mirrored); err != nil {
			return err
		}
	}

	if _, err := s.members.DeleteByOwnerAndGroup(ctx, owner, deleteIndex); err != nil {
		return err
	}

	if err := s.groups.Delete(ctx, owner, deleteIndex); err != nil {
		return err
	}

	s.bumpGroups(ctx, owner)
	s.bumpMembership(ctx, owner)
	return nil
}

// DeleteRelatedUsersFromAllGroups implements the size-dispatch in §4.3:
// single key goes straight through, many keys for one owner go through
// one multi-key call, and many owners fan out in parallel with results
// merged by summation.
func (s *relationshipGroupService) DeleteRelatedUsersFromAllGroups(ctx context.Context, keys []MemberOwnerPair, bumpVersion bool) (DeleteResult, error) {
	if len(keys) == 0 {
		return DeleteResult{}, nil
	}

	byOwner := make(map[UserID][]UserID)
	order := make([]UserID, 0)
	for _, k := range keys {
		if _, ok := byOwner[k.OwnerID]; !ok {
			order = append(order, k.OwnerID)
		}
		byOwner[k.OwnerID] = append(byOwner[k.OwnerID], k.RelatedUserID)
	}

	if len(order) == 1 {
		owner := order[0]
		res, err := s.members.DeleteByOwnerAndRelatedUsers(ctx, owner, byOwner[owner], nil)
		if err != nil {
			return DeleteResult{}, err
		}
		if bumpVersion {
			s.bumpMembership(ctx, owner)
		}
		return res, nil
	}

	type partial struct {
		res DeleteResult
		err error
	}
	results := make(chan partial, len(order))
	var wg sync.WaitGroup
	for _, owner := range order {
		owner := owner
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.members.DeleteByOwnerAndRelatedUsers(ctx, owner, byOwner[owner], nil)
			if err == nil && bumpVersion {
				s.bumpMembership(ctx, owner)
			}
			results <- partial{res: res, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var merged DeleteResult
	var firstErr error
	for p := range results {
		if p.err != nil && firstErr == nil {
			firstErr = p.err
			continue
		}
		merged = merged.Add(p.res)
	}
	if firstErr != nil {
		return DeleteResult{}, firstErr
	}
	return merged, nil
}

func (s *relationshipGroupService) RenameGroup(ctx context.Context, owner UserID, idx GroupIndex, name string) error {
	res, err := s.groups.UpdateName(ctx, owner, idx, name)
	if err != nil {
		return err
	}
	if res.Modified > 0 {
		s.bumpGroups(ctx, owner)
	}
	return nil
}

const (
	defaultGroupPageSize  = 20
	defaultMemberPageSize = 20
	maxPageSize           = 1000
)

// GroupPage is one offset page of an owner's relationship groups, answering
// the "list/count queries" surface named in §4.4.
type GroupPage struct {
	Data       []RelationshipGroup
	TotalCount int
	Page       int
	PageSize   int
	HasNext    bool
}

// MemberPage is one forward page of a single group's membership, cursored
// by related-user id, answering the "member-id queries" surface named in
// §4.4. A group's membership can grow without the bound a group count has,
// so this pages by cursor rather than by offset.
type MemberPage struct {
	Data       []RelationshipGroupMember
	NextCursor *UserID
}

// ListGroups pages through an owner's groups, offset-style: it fetches the
// full owned set once with FindByOwner, takes TotalCount from its length,
// and slices in memory rather than asking each adapter for its own
// LIMIT/OFFSET query.
func (s *relationshipGroupService) ListGroups(ctx context.Context, owner UserID, page, pageSize int) (GroupPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultGroupPageSize
	} else if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	groups, err := s.groups.FindByOwner(ctx, owner)
	if err != nil {
		return GroupPage{}, err
	}

	offset := (page - 1) * pageSize
	if offset >= len(groups) {
		return GroupPage{TotalCount: len(groups), Page: page, PageSize: pageSize}, nil
	}
	end := offset + pageSize
	if end > len(groups) {
		end = len(groups)
	}
	return GroupPage{
		Data:       groups[offset:end],
		TotalCount: len(groups),
		Page:       page,
		PageSize:   pageSize,
		HasNext:    end < len(groups),
	}, nil
}

// ListGroupMembers pages a single group's membership forward by
// related-user cursor, so callers never have to pass the growing count of
// items already seen as they would with an offset.
func (s *relationshipGroupService) ListGroupMembers(ctx context.Context, owner UserID, idx GroupIndex, cursor *UserID, pageSize int) (MemberPage, error) {
	if pageSize <= 0 {
		pageSize = defaultMemberPageSize
	} else if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	members, err := s.members.FindMembers(ctx, owner, idx)
	if err != nil {
		return MemberPage{}, err
	}
	// cursor pagination needs a stable total order over the cursor field;
	// stores aren't required to return one (a map-backed store won't).
	sort.Slice(members, func(i, j int) bool { return members[i].RelatedUserID < members[j].RelatedUserID })

	start := 0
	if cursor != nil {
		start = sort.Search(len(members), func(i int) bool { return members[i].RelatedUserID > *cursor })
	}
	if start >= len(members) {
		return MemberPage{}, nil
	}
	end := start + pageSize
	if end > len(members) {
		end = len(members)
	}

	page := members[start:end]
	var next *UserID
	if end < len(members) {
		c := page[len(page)-1].RelatedUserID
		next = &c
	}
	return MemberPage{Data: page, NextCursor: next}, nil
}

func (s *relationshipGroupService) bumpGroups(ctx context.Context, owner UserID) {
	bumpVersionBestEffort(ctx, s.ver, s.log, owner, StreamRelationshipGroups, time.Now())
}

func (s *relationshipGroupService) bumpMembership(ctx context.Context, owner UserID) {
	bumpVersionBestEffort(ctx, s.ver, s.log, owner, StreamGroupMembership, time.Now())
}
