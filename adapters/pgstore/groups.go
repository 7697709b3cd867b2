package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/socialgraph/core"
)

// RelationshipGroupStore is a social.RelationshipGroupStore over Postgres.
type RelationshipGroupStore struct {
	db *sql.DB
}

func (a *Adapter) NewRelationshipGroupStore() *RelationshipGroupStore {
	return &RelationshipGroupStore{db: a.db}
}

func (s *RelationshipGroupStore) Insert(ctx context.Context, g social.RelationshipGroup, sess social.Session) error {
	q := `INSERT INTO relationship_groups (owner_id, group_index, name, creation_date) VALUES ($1, $2, $3, $4)`
	_, err := execerFor(s.db, sess).ExecContext(ctx, q, g.OwnerID, g.Index, g.Name, g.CreationDate)
	return wrapPQErr(err)
}

func (s *RelationshipGroupStore) FindByOwnerAndIndex(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.RelationshipGroup, bool, error) {
	q := `SELECT owner_id, group_index, name, creation_date FROM relationship_groups WHERE owner_id = $1 AND group_index = $2`
	var g social.RelationshipGroup
	err := s.db.QueryRowContext(ctx, q, owner, idx).Scan(&g.OwnerID, &g.Index, &g.Name, &g.CreationDate)
	if err == sql.ErrNoRows {
		return social.RelationshipGroup{}, false, nil
	}
	if err != nil {
		return social.RelationshipGroup{}, false, fmt.Errorf("find relationship group: %w", err)
	}
	return g, true, nil
}

func (s *RelationshipGroupStore) FindByOwner(ctx context.Context, owner social.UserID) ([]social.RelationshipGroup, error) {
	q := `SELECT owner_id, group_index, name, creation_date FROM relationship_groups WHERE owner_id = $1`
	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("find relationship groups: %w", err)
	}
	defer rows.Close()
	var out []social.RelationshipGroup
	for rows.Next() {
		var g social.RelationshipGroup
		if err := rows.Scan(&g.OwnerID, &g.Index, &g.Name, &g.CreationDate); err != nil {
			return nil, fmt.Errorf("scan relationship group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *RelationshipGroupStore) CountByOwner(ctx context.Context, owner social.UserID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationship_groups WHERE owner_id = $1`, owner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count relationship groups: %w", err)
	}
	return n, nil
}

func (s *RelationshipGroupStore) UpdateName(ctx context.Context, owner social.UserID, idx social.GroupIndex, name string) (social.UpdateResult, error) {
	q := `UPDATE relationship_groups SET name = $1 WHERE owner_id = $2 AND group_index = $3`
	result, err := s.db.ExecContext(ctx, q, name, owner, idx)
	if err != nil {
		return social.UpdateResult{}, fmt.Errorf("rename relationship group: %w", err)
	}
	affected, _ := result.RowsAffected()
	return social.UpdateResult{Matched: affected, Modified: affected}, nil
}

func (s *RelationshipGroupStore) BatchUpdate(ctx context.Context, keys []social.GroupKey, name *string, creationDate *int64) (social.UpdateResult, error) {
	var total social.UpdateResult
	for _, k := range keys {
		switch {
		case name != nil:
			result, err := s.db.ExecContext(ctx, `UPDATE relationship_groups SET name = $1 WHERE owner_id = $2 AND group_index = $3`, *name, k.OwnerID, k.Index)
			if err != nil {
				return total, fmt.Errorf("batch update relationship groups: %w", err)
			}
			affected, _ := result.RowsAffected()
			total.Matched += affected
			total.Modified += affected
		case creationDate != nil:
			result, err := s.db.ExecContext(ctx, `UPDATE relationship_groups SET creation_date = $1 WHERE owner_id = $2 AND group_index = $3`, time.Unix(0, *creationDate), k.OwnerID, k.Index)
			if err != nil {
				return total, fmt.Errorf("batch update relationship groups: %w", err)
			}
			affected, _ := result.RowsAffected()
			total.Matched += affected
			total.Modified += affected
		}
	}
	return total, nil
}

func (s *RelationshipGroupStore) Delete(ctx context.Context, owner social.UserID, idx social.GroupIndex) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relationship_groups WHERE owner_id = $1 AND group_index = $2`, owner, idx)
	if err != nil {
		return fmt.Errorf("delete relationship group: %w", err)
	}
	return nil
}

// RelationshipGroupMemberStore is a social.RelationshipGroupMemberStore
// over Postgres.
type RelationshipGroupMemberStore struct {
	db *sql.DB
}

func (a *Adapter) NewRelationshipGroupMemberStore() *RelationshipGroupMemberStore {
	return &RelationshipGroupMemberStore{db: a.db}
}

func (s *RelationshipGroupMemberStore) Upsert(ctx context.Context, m social.RelationshipGroupMember, sess social.Session) (social.AtomicResult[social.RelationshipGroupMember], error) {
	q := `INSERT INTO relationship_group_members (owner_id, group_index, related_user_id, join_date)
	      VALUES ($1, $2, $3, $4)
	      ON CONFLICT (owner_id, group_index, related_user_id) DO NOTHING`
	result, err := execerFor(s.db, sess).ExecContext(ctx, q, m.OwnerID, m.GroupIndex, m.RelatedUserID, m.JoinDate)
	if err != nil {
		return social.AtomicResult[social.RelationshipGroupMember]{}, fmt.Errorf("upsert group member: %w", err)
	}
	affected, _ := result.RowsAffected()
	return *social.NewAtomicResult(m, affected > 0), nil
}

func (s *RelationshipGroupMemberStore) DeleteByKey(ctx context.Context, key social.MemberKey, sess social.Session) error {
	q := `DELETE FROM relationship_group_members WHERE owner_id = $1 AND group_index = $2 AND related_user_id = $3`
	_, err := execerFor(s.db, sess).ExecContext(ctx, q, key.OwnerID, key.GroupIndex, key.RelatedUserID)
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}
	return nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndGroup(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.DeleteResult, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM relationship_group_members WHERE owner_id = $1 AND group_index = $2`, owner, idx)
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete group members: %w", err)
	}
	affected, _ := result.RowsAffected()
	return social.DeleteResult{Matched: affected, Deleted: affected}, nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndRelatedUsers(ctx context.Context, owner social.UserID, related []social.UserID, sess social.Session) (social.DeleteResult, error) {
	q := `DELETE FROM relationship_group_members WHERE owner_id = $1 AND related_user_id = ANY($2)`
	ids := make([]int64, len(related))
	for i, r := range related {
		ids[i] = int64(r)
	}
	result, err := execerFor(s.db, sess).ExecContext(ctx, q, owner, pq.Array(ids))
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete related users from groups: %w", err)
	}
	affected, _ := result.RowsAffected()
	return social.DeleteResult{Matched: affected, Deleted: affected}, nil
}

func (s *RelationshipGroupMemberStore) FindMembers(ctx context.Context, owner social.UserID, idx social.GroupIndex) ([]social.RelationshipGroupMember, error) {
	q := `SELECT owner_id, group_index, related_user_id, join_date FROM relationship_group_members WHERE owner_id = $1 AND group_index = $2`
	rows, err := s.db.QueryContext(ctx, q, owner, idx)
	if err != nil {
		return nil, fmt.Errorf("find group members: %w", err)
	}
	defer rows.Close()
	var out []social.RelationshipGroupMember
	for rows.Next() {
		var m social.RelationshipGroupMember
		if err := rows.Scan(&m.OwnerID, &m.GroupIndex, &m.RelatedUserID, &m.JoinDate); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *RelationshipGroupMemberStore) FindGroupIndexes(ctx context.Context, owner, related social.UserID) ([]social.GroupIndex, error) {
	q := `SELECT group_index FROM relationship_group_members WHERE owner_id = $1 AND related_user_id = $2`
	rows, err := s.db.QueryContext(ctx, q, owner, related)
	if err != nil {
		return nil, fmt.Errorf("find group indexes: %w", err)
	}
	defer rows.Close()
	var out []social.GroupIndex
	for rows.Next() {
		var idx social.GroupIndex
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan group index: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (s *RelationshipGroupMemberStore) InsertAllOfSameType(ctx context.Context, members []social.RelationshipGroupMember) error {
	if len(members) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	q := `INSERT INTO relationship_group_members (owner_id, group_index, related_user_id, join_date)
	      VALUES ($1, $2, $3, $4)
	      ON CONFLICT (owner_id, group_index, related_user_id) DO NOTHING`
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, q, m.OwnerID, m.GroupIndex, m.RelatedUserID, m.JoinDate); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk insert group member: %w", err)
		}
	}
	return tx.Commit()
}
