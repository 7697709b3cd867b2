// Package pgstore is an alternate relational adapter over
// database/sql + lib/pq, grounded on friendit's PostgresAdapter: plain
// parameterized SQL, RowsAffected checks, init-time DDL. It implements
// the same store interfaces as mongostore for callers that run on
// Postgres instead of MongoDB.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/socialgraph/core"
)

// Adapter owns the *sql.DB every store in this package shares.
type Adapter struct {
	db *sql.DB
}

func NewAdapter(connectionString string) (*Adapter, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a := &Adapter{db: db}
	if err := a.initTables(); err != nil {
		return nil, fmt.Errorf("init tables: %w", err)
	}
	return a, nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS friend_requests (
			id BIGINT PRIMARY KEY,
			requester_id BIGINT NOT NULL,
			recipient_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			reason TEXT,
			creation_date TIMESTAMPTZ NOT NULL,
			response_date TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_requests_requester ON friend_requests(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient ON friend_requests(recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_requests_pending ON friend_requests(requester_id, recipient_id) WHERE status = 'PENDING'`,
		`CREATE TABLE IF NOT EXISTS relationship_groups (
			owner_id BIGINT NOT NULL,
			group_index INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			creation_date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, group_index)
		)`,
		`CREATE TABLE IF NOT EXISTS relationship_group_members (
			owner_id BIGINT NOT NULL,
			group_index INT NOT NULL,
			related_user_id BIGINT NOT NULL,
			join_date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, group_index, related_user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_owner_related ON relationship_group_members(owner_id, related_user_id)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			blocker_id BIGINT NOT NULL,
			blocked_id BIGINT NOT NULL,
			PRIMARY KEY (blocker_id, blocked_id)
		)`,
		`CREATE TABLE IF NOT EXISTS version_rows (
			owner_id BIGINT NOT NULL,
			stream VARCHAR(32) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, stream)
		)`,
	}
	for _, q := range queries {
		if _, err := a.db.Exec(q); err != nil {
			return fmt.Errorf("execute %q: %w", q, err)
		}
	}
	return nil
}

// sqlSession carries the *sql.Tx started by InTransaction through to the
// other stores sharing that transaction.
type sqlSession struct {
	tx *sql.Tx
}

func (sqlSession) session() {}

func execerFor(db *sql.DB, sess social.Session) interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
} {
	if s, ok := sess.(sqlSession); ok && s.tx != nil {
		return s.tx
	}
	return db
}

func isPQUniqueViolation(err error) bool {
	// lib/pq reports unique_violation as SQLSTATE 23505; matching on the
	// message avoids an explicit *pq.Error import dependency duplicated
	// across every adapter file.
	return err != nil && (containsCode(err, "23505") || containsCode(err, "duplicate key"))
}

func containsCode(err error, substr string) bool {
	msg := err.Error()
	for i := 0; i+len(substr) <= len(msg); i++ {
		if msg[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func wrapPQErr(err error) error {
	if err == nil {
		return nil
	}
	if isPQUniqueViolation(err) {
		return &social.DuplicateKeyError{Err: err}
	}
	return err
}

// FriendRequestStore is a social.FriendRequestStore over Postgres.
type FriendRequestStore struct {
	db *sql.DB
}

func (a *Adapter) NewFriendRequestStore() *FriendRequestStore {
	return &FriendRequestStore{db: a.db}
}

func (s *FriendRequestStore) Insert(ctx context.Context, req social.FriendRequest, sess social.Session) error {
	q := `INSERT INTO friend_requests (id, requester_id, recipient_id, content, status, reason, creation_date, response_date)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := execerFor(s.db, sess).ExecContext(ctx, q, req.ID, req.RequesterID, req.RecipientID, req.Content, req.Status, req.Reason, req.CreationDate, req.ResponseDate)
	return wrapPQErr(err)
}

func scanFriendRequest(row *sql.Row) (social.FriendRequest, bool, error) {
	var req social.FriendRequest
	err := row.Scan(&req.ID, &req.RequesterID, &req.RecipientID, &req.Content, &req.Status, &req.Reason, &req.CreationDate, &req.ResponseDate)
	if err == sql.ErrNoRows {
		return social.FriendRequest{}, false, nil
	}
	if err != nil {
		return social.FriendRequest{}, false, fmt.Errorf("scan friend request: %w", err)
	}
	return req, true, nil
}

func (s *FriendRequestStore) FindByID(ctx context.Context, id social.RequestID, proj social.RequestProjection) (social.FriendRequest, bool, error) {
	q := `SELECT id, requester_id, recipient_id, content, status, reason, creation_date, response_date FROM friend_requests WHERE id = $1`
	return scanFriendRequest(s.db.QueryRowContext(ctx, q, id))
}

func (s *FriendRequestStore) findMany(ctx context.Context, q string, arg any) ([]social.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("find friend requests: %w", err)
	}
	defer rows.Close()
	var out []social.FriendRequest
	for rows.Next() {
		var req social.FriendRequest
		if err := rows.Scan(&req.ID, &req.RequesterID, &req.RecipientID, &req.Content, &req.Status, &req.Reason, &req.CreationDate, &req.ResponseDate); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *FriendRequestStore) FindBySender(ctx context.Context, requesterID social.UserID) ([]social.FriendRequest, error) {
	q := `SELECT id, requester_id, recipient_id, content, status, reason, creation_date, response_date FROM friend_requests WHERE requester_id = $1`
	return s.findMany(ctx, q, requesterID)
}

func (s *FriendRequestStore) FindByRecipient(ctx context.Context, recipientID social.UserID) ([]social.FriendRequest, error) {
	q := `SELECT id, requester_id, recipient_id, content, status, reason, creation_date, response_date FROM friend_requests WHERE recipient_id = $1`
	return s.findMany(ctx, q, recipientID)
}

func (s *FriendRequestStore) FindPending(ctx context.Context, requesterID, recipientID social.UserID) (social.FriendRequest, bool, error) {
	q := `SELECT id, requester_id, recipient_id, content, status, reason, creation_date, response_date
	      FROM friend_requests WHERE requester_id = $1 AND recipient_id = $2 ORDER BY creation_date DESC LIMIT 1`
	return scanFriendRequest(s.db.QueryRowContext(ctx, q, requesterID, recipientID))
}

func (s *FriendRequestStore) UpdateStatusIfPending(ctx context.Context, id social.RequestID, newStatus social.FriendRequestStatus, reason *string, responseDateUnixNanos int64, sess social.Session) (social.UpdateResult, error) {
	exec := execerFor(s.db, sess)
	q := `UPDATE friend_requests SET status = $1, reason = $2, response_date = $3 WHERE id = $4 AND status = 'PENDING'`
	result, err := exec.ExecContext(ctx, q, newStatus, reason, time.Unix(0, responseDateUnixNanos), id)
	if err != nil {
		return social.UpdateResult{}, fmt.Errorf("update friend request status: %w", err)
	}
	modified, err := result.RowsAffected()
	if err != nil {
		return social.UpdateResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if modified > 0 {
		return social.UpdateResult{Matched: modified, Modified: modified}, nil
	}
	// 0 rows: distinguish not-found from not-pending with a follow-up read.
	if _, found, _ := s.FindByID(ctx, id, social.ProjectStatusOnly); found {
		return social.UpdateResult{Matched: 1, Modified: 0}, nil
	}
	return social.UpdateResult{}, nil
}

func (s *FriendRequestStore) BatchUpdate(ctx context.Context, ids []social.RequestID, fields social.FriendRequestFieldSet) (social.UpdateResult, error) {
	var total social.UpdateResult
	for _, id := range ids {
		set, args := "", []any{}
		n := 1
		add := func(col string, val any) {
			if set != "" {
				set += ", "
			}
			n++
			set += fmt.Sprintf("%s = $%d", col, n)
			args = append(args, val)
		}
		if fields.Status != nil {
			add("status", *fields.Status)
		}
		if fields.Content != nil {
			add("content", *fields.Content)
		}
		if fields.Reason != nil {
			add("reason", *fields.Reason)
		}
		if fields.ResponseDate != nil {
			add("response_date", time.Unix(0, *fields.ResponseDate))
		}
		if set == "" {
			continue
		}
		q := fmt.Sprintf("UPDATE friend_requests SET %s WHERE id = $1", set)
		result, err := s.db.ExecContext(ctx, q, append([]any{id}, args...)...)
		if err != nil {
			return total, fmt.Errorf("batch update friend requests: %w", err)
		}
		affected, _ := result.RowsAffected()
		total.Matched += affected
		total.Modified += affected
	}
	return total, nil
}

func (s *FriendRequestStore) DeleteByIDs(ctx context.Context, ids []social.RequestID) (social.DeleteResult, error) {
	var total social.DeleteResult
	for _, id := range ids {
		result, err := s.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
		if err != nil {
			return total, fmt.Errorf("delete friend request: %w", err)
		}
		affected, _ := result.RowsAffected()
		total.Matched += affected
		total.Deleted += affected
	}
	return total, nil
}

func (s *FriendRequestStore) DeleteExpired(ctx context.Context, olderThanCreationUnixNanos int64) (social.DeleteResult, error) {
	q := `DELETE FROM friend_requests WHERE status = 'PENDING' AND creation_date < $1`
	result, err := s.db.ExecContext(ctx, q, time.Unix(0, olderThanCreationUnixNanos))
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete expired friend requests: %w", err)
	}
	affected, _ := result.RowsAffected()
	return social.DeleteResult{Matched: affected, Deleted: affected}, nil
}

// InTransaction runs fn inside a *sql.Tx at the default isolation level;
// the outer retrypolicy.Policy supplies the bounded-attempts ceiling on
// serialization failures that the driver itself doesn't retry.
func (s *FriendRequestStore) InTransaction(ctx context.Context, fn func(ctx context.Context, sess social.Session) (any, error)) (any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	result, err := fn(ctx, sqlSession{tx: tx})
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapTransientPQErr(err)
	}
	return result, nil
}

func wrapTransientPQErr(err error) error {
	if err == nil {
		return nil
	}
	if containsCode(err, "40001") || containsCode(err, "serialization") {
		return &social.TransientTransactionError{Err: err}
	}
	return fmt.Errorf("commit transaction: %w", err)
}
