package social

import "time"

// FriendRequestWireView is the pure projection of a FriendRequest this
// package hands to the (external) protocol-buffer layer. It is a plain
// DTO, not a generated protobuf type — this module does not own .proto
// files or a protoc toolchain; a caller's serialisation layer maps this
// struct onto its own wire message.
type FriendRequestWireView struct {
	ID           RequestID
	RequesterID  UserID
	RecipientID  UserID
	Content      string
	Status       FriendRequestStatus
	Reason       *string
	CreationDate time.Time
	ResponseDate *time.Time
}

// ToProto applies the expiry projector and returns the view a client
// should see "as of now". It never touches the store.
func ToProto(req FriendRequest, expireAfter time.Duration, now time.Time) FriendRequestWireView {
	status, responseDate := ProjectStatus(req, expireAfter, now)
	return FriendRequestWireView{
		ID:           req.ID,
		RequesterID:  req.RequesterID,
		RecipientID:  req.RecipientID,
		Content:      req.Content,
		Status:       status,
		Reason:       req.Reason,
		CreationDate: req.CreationDate,
		ResponseDate: responseDate,
	}
}

// mapSlice projects each element of in through fn. QueryRequestsWithVersion
// is the only caller; a dedicated generic pipeline package isn't earned by
// one call site.
func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
