package social

import "context"

// Session threads a single store-level transaction handle through a
// sequence of mutations, per §5: "all mutations within the transaction
// must thread the same session handle". Adapters define the concrete
// type (a *mongo.Session wrapped, a *sql.Tx wrapped); this package only
// ever holds the interface and never inspects it. Any value satisfies
// Session: each adapter recognises only its own session type and treats
// any other value, including nil, as "no session".
type Session interface{}

// RequestProjection selects which fields FindByID needs to load, so
// adapters can avoid over-fetching on the hot authorization-check path.
type RequestProjection int

const (
	ProjectStatusOnly RequestProjection = iota
	ProjectStatusAndCreation
	ProjectRecipientOnly
)

// FriendRequestFieldSet names the subset of fields a batch admin update
// may touch. Zero-value fields are "not set" and left untouched.
type FriendRequestFieldSet struct {
	Status       *FriendRequestStatus
	Content      *string
	Reason       *string
	ResponseDate *int64 // unix nanos; nil means "leave as is"
}

// FriendRequestStore is the persistence contract for FriendRequest rows
// (part of the external Store, C2's sibling for requests rather than
// relationships).
type FriendRequestStore interface {
	Insert(ctx context.Context, req FriendRequest, sess Session) error
	FindByID(ctx context.Context, id RequestID, proj RequestProjection) (FriendRequest, bool, error)
	FindBySender(ctx context.Context, requesterID UserID) ([]FriendRequest, error)
	FindByRecipient(ctx context.Context, recipientID UserID) ([]FriendRequest, error)
	FindPending(ctx context.Context, requesterID, recipientID UserID) (FriendRequest, bool, error)

	// UpdateStatusIfPending performs the §5 CAS: status = PENDING is the
	// guard. Modified == 0 with Matched == 1 means the row existed but
	// had already left PENDING (lost race).
	UpdateStatusIfPending(ctx context.Context, id RequestID, newStatus FriendRequestStatus, reason *string, responseDate int64, sess Session) (UpdateResult, error)

	BatchUpdate(ctx context.Context, ids []RequestID, fields FriendRequestFieldSet) (UpdateResult, error)
	DeleteByIDs(ctx context.Context, ids []RequestID) (DeleteResult, error)
	DeleteExpired(ctx context.Context, olderThanCreationUnixNanos int64) (DeleteResult, error)

	// InTransaction runs fn under a Session that every call inside fn
	// must reuse, and returns fn's error (a TransientTransactionError
	// included) to the caller. It takes no retry policy; a caller that
	// wants transient failures retried wraps the call itself, as the
	// ACCEPT path does with retrypolicy.Policy.
	InTransaction(ctx context.Context, fn func(ctx context.Context, sess Session) (any, error)) (any, error)
}

// RelationshipGroupStore persists RelationshipGroup rows.
type RelationshipGroupStore interface {
	Insert(ctx context.Context, g RelationshipGroup, sess Session) error
	FindByOwnerAndIndex(ctx context.Context, owner UserID, idx GroupIndex) (RelationshipGroup, bool, error)
	FindByOwner(ctx context.Context, owner UserID) ([]RelationshipGroup, error)
	CountByOwner(ctx context.Context, owner UserID) (int64, error)
	UpdateName(ctx context.Context, owner UserID, idx GroupIndex, name string) (UpdateResult, error)
	BatchUpdate(ctx context.Context, keys []GroupKey, name *string, creationDate *int64) (UpdateResult, error)
	Delete(ctx context.Context, owner UserID, idx GroupIndex) error
}

// GroupKey addresses one (owner, group) pair for batch group operations.
type GroupKey struct {
	OwnerID UserID
	Index   GroupIndex
}

// MemberKey addresses one (owner, group, relatedUser) membership row.
type MemberKey struct {
	OwnerID       UserID
	GroupIndex    GroupIndex
	RelatedUserID UserID
}

// RelationshipGroupMemberStore persists RelationshipGroupMember rows.
type RelationshipGroupMemberStore interface {
	Upsert(ctx context.Context, m RelationshipGroupMember, sess Session) (AtomicResult[RelationshipGroupMember], error)
	DeleteByKey(ctx context.Context, key MemberKey, sess Session) error
	DeleteByOwnerAndGroup(ctx context.Context, owner UserID, idx GroupIndex) (DeleteResult, error)
	DeleteByOwnerAndRelatedUsers(ctx context.Context, owner UserID, related []UserID, sess Session) (DeleteResult, error)

	FindMembers(ctx context.Context, owner UserID, idx GroupIndex) ([]RelationshipGroupMember, error)
	FindGroupIndexes(ctx context.Context, owner, related UserID) ([]GroupIndex, error)

	// InsertAllOfSameType bulk-inserts into one (owner, group), tolerating
	// partial success on duplicate key (idempotent moves, per §4.3).
	InsertAllOfSameType(ctx context.Context, members []RelationshipGroupMember) error
}

// RelationshipStore is the out-of-scope document store's relationship
// half (C2), consumed here through two operations: FriendTwoUsers on the
// ACCEPT path and HasBlocked on the create path.
type RelationshipStore interface {
	// FriendTwoUsers creates the symmetric relationship rows for
	// requesterID and recipientID inside the caller's transaction
	// session, and returns the group index each side's new relationship
	// landed in (ordinarily DefaultIndex for both).
	FriendTwoUsers(ctx context.Context, requesterID, recipientID UserID, sess Session) (requesterGroup, recipientGroup GroupIndex, err error)

	// HasBlocked reports whether blockerID has blocked blockedID,
	// consulted by authAndCreateRequest before a request is created.
	HasBlocked(ctx context.Context, blockerID, blockedID UserID) (bool, error)
}

// IDGenerator is the external 64-bit unique ID source (§6). serviceType
// namespaces the ID space (e.g. "friendRequest"); implementations need
// not block.
type IDGenerator interface {
	NextLargeGapID(ctx context.Context, serviceType string) (int64, error)
}

// TaskScheduler reschedules a named recurring job, invoked by the
// scheduler only on the cluster leader (§6). This package never calls fn
// itself outside of what the scheduler triggers.
type TaskScheduler interface {
	Reschedule(name string, cronExpr string, fn func(ctx context.Context)) error
}
