package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/socialgraph/core"
)

// RelationshipStore is a social.RelationshipStore over Postgres.
type RelationshipStore struct {
	db *sql.DB
}

func (a *Adapter) NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{db: a.db}
}

func (r *RelationshipStore) FriendTwoUsers(ctx context.Context, requesterID, recipientID social.UserID, sess social.Session) (social.GroupIndex, social.GroupIndex, error) {
	exec := execerFor(r.db, sess)
	q := `INSERT INTO relationship_group_members (owner_id, group_index, related_user_id, join_date)
	      VALUES ($1, $2, $3, now())
	      ON CONFLICT (owner_id, group_index, related_user_id) DO NOTHING`
	if _, err := exec.ExecContext(ctx, q, requesterID, social.DefaultIndex, recipientID); err != nil {
		return 0, 0, fmt.Errorf("friend requester: %w", err)
	}
	if _, err := exec.ExecContext(ctx, q, recipientID, social.DefaultIndex, requesterID); err != nil {
		return 0, 0, fmt.Errorf("friend recipient: %w", err)
	}
	return social.DefaultIndex, social.DefaultIndex, nil
}

func (r *RelationshipStore) HasBlocked(ctx context.Context, blockerID, blockedID social.UserID) (bool, error) {
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM blocks WHERE blocker_id = $1 AND blocked_id = $2)`
	if err := r.db.QueryRowContext(ctx, q, blockerID, blockedID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return exists, nil
}
