package social

import "time"

// UserID identifies a user of the social graph. Externally generated.
type UserID int64

// RequestID identifies a friend request. 64-bit, globally unique,
// externally generated (see IDGenerator).
type RequestID int64

// GroupIndex names one of a user's relationship groups. It is a 31-bit
// non-negative integer; DefaultIndex is reserved and indestructible.
type GroupIndex int32

// DefaultIndex is the distinguished group every user has and cannot delete.
const DefaultIndex GroupIndex = 0

// Valid reports whether idx fits the 31-bit non-negative domain.
func (idx GroupIndex) Valid() bool {
	return idx >= 0 && idx <= 0x7FFFFFFF
}

// FriendRequestStatus is the lifecycle state of a FriendRequest. PENDING
// is the only non-terminal stored state; EXPIRED is never stored — it is
// produced only by ProjectStatus at read time.
type FriendRequestStatus string

const (
	StatusPending  FriendRequestStatus = "PENDING"
	StatusAccepted FriendRequestStatus = "ACCEPTED"
	StatusDeclined FriendRequestStatus = "DECLINED"
	StatusIgnored  FriendRequestStatus = "IGNORED"
	StatusCanceled FriendRequestStatus = "CANCELED"
	StatusExpired  FriendRequestStatus = "EXPIRED"
)

// IsTerminal reports whether status can never transition further once
// stored (EXPIRED is excluded: it is never a stored status).
func (s FriendRequestStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusIgnored, StatusCanceled:
		return true
	default:
		return false
	}
}

// FriendRequest is the stored record of one request for a relationship.
type FriendRequest struct {
	ID           RequestID           `bson:"_id" db:"id"`
	RequesterID  UserID              `bson:"requesterId" db:"requester_id"`
	RecipientID  UserID              `bson:"recipientId" db:"recipient_id"`
	Content      string              `bson:"content" db:"content"`
	Status       FriendRequestStatus `bson:"status" db:"status"`
	Reason       *string             `bson:"reason,omitempty" db:"reason"`
	CreationDate time.Time           `bson:"creationDate" db:"creation_date"`
	ResponseDate *time.Time          `bson:"responseDate,omitempty" db:"response_date"`
}

// RelationshipGroup is a user-owned, named bucket of confirmed
// relationships, keyed by (OwnerID, Index).
type RelationshipGroup struct {
	OwnerID      UserID     `bson:"ownerId" db:"owner_id"`
	Index        GroupIndex `bson:"index" db:"group_index"`
	Name         string     `bson:"name" db:"name"`
	CreationDate time.Time  `bson:"creationDate" db:"creation_date"`
}

// RelationshipGroupMember places one related user inside one of the
// owner's groups, keyed by (OwnerID, GroupIndex, RelatedUserID). The same
// RelatedUserID may appear in several groups of the same owner.
type RelationshipGroupMember struct {
	OwnerID       UserID     `bson:"ownerId" db:"owner_id"`
	GroupIndex    GroupIndex `bson:"groupIndex" db:"group_index"`
	RelatedUserID UserID     `bson:"relatedUserId" db:"related_user_id"`
	JoinDate      time.Time  `bson:"joinDate" db:"join_date"`
}

// VersionStream names one of the four independently-advancing streams
// tracked by the Version Registry.
type VersionStream string

const (
	StreamSentRequests     VersionStream = "sentRequests"
	StreamReceivedRequests VersionStream = "receivedRequests"
	StreamRelationshipGroups VersionStream = "relationshipGroups"
	StreamGroupMembership  VersionStream = "groupMembership"
)

// VersionRow is a single (OwnerID, Stream) last-updated timestamp.
// Concurrent updaters resolve via last-writer-wins on wall-clock.
type VersionRow struct {
	OwnerID   UserID        `bson:"ownerId" db:"owner_id"`
	Stream    VersionStream `bson:"stream" db:"stream"`
	UpdatedAt time.Time     `bson:"updatedAt" db:"updated_at"`
}

// UpdateResult mirrors the Store contract's conditional-update outcome,
// letting a caller distinguish "matched but not modified" from "matched
// and modified" from "no match at all" without a second read.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// DeleteResult mirrors a batched delete outcome, summable across a
// fan-out of per-owner deletes (see RelationshipGroupService.DeleteRelatedUsersFromAllGroups).
type DeleteResult struct {
	Matched int64
	Deleted int64
}

func (d DeleteResult) Add(other DeleteResult) DeleteResult {
	return DeleteResult{Matched: d.Matched + other.Matched, Deleted: d.Deleted + other.Deleted}
}
