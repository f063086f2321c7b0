package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/huddle/pkg/models"
)

// NewSQLStoresFromDSN creates SQL-backed stores for postgres or sqlite.
func NewSQLStoresFromDSN(driver, dsn string, config *PoolConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPoolConfig()
	}

	db, err := OpenDB(driver, dsn, config)
	if err != nil {
		return StoreSet{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}
	return NewSQLStores(db, driver)
}

// OpenDB opens a pooled handle for driver. SQLite is limited to a single
// connection because it serializes writers anyway.
func OpenDB(driver, dsn string, config *PoolConfig) (*sql.DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultPoolConfig()
	}
	driverName := DriverPostgres
	if d == dialectSQLite {
		driverName = DriverSQLite
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	return db, nil
}

// NewSQLStores wires every store to an already opened handle.
func NewSQLStores(db *sql.DB, driver string) (StoreSet, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return StoreSet{}, err
	}
	base := sqlBase{db: db, dialect: d}
	return StoreSet{
		Users:     &sqlUserStore{base},
		Blocks:    &sqlBlockStore{base},
		Groups:    &sqlGroupStore{base},
		Messages:  &sqlMessageStore{base},
		Reactions: &sqlReactionStore{base},
		ping:      db.PingContext,
		closer:    db.Close,
	}, nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlBase struct {
	db      *sql.DB
	dialect dialect
}

func (b sqlBase) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, b.dialect.rebind(query), args...)
}

func (b sqlBase) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, b.dialect.rebind(query), args...)
}

func (b sqlBase) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, b.dialect.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqlUserStore struct {
	sqlBase
}

func (s *sqlUserStore) Upsert(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("user is required")
	}
	updatedAt := user.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO users (id, username, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET username = excluded.username, updated_at = excluded.updated_at`,
		user.ID, user.Username, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *sqlUserStore) Get(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.queryRow(ctx, s.db,
		`SELECT id, username, updated_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Username, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

type sqlBlockStore struct {
	sqlBase
}

func (s *sqlBlockStore) Block(ctx context.Context, blockerID, blockedID int64) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (blocker_id, blocked_id) DO NOTHING`,
		blockerID, blockedID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (s *sqlBlockStore) Unblock(ctx context.Context, blockerID, blockedID int64) error {
	_, err := s.exec(ctx, s.db,
		`DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *sqlBlockStore) IsBlocked(ctx context.Context, a, b int64) (bool, error) {
	var count int
	err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM blocks
		 WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`,
		a, b, b, a).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return count > 0, nil
}

func (s *sqlBlockStore) Related(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT blocker_id, blocked_id FROM blocks WHERE blocker_id = ? OR blocked_id = ?`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list related blocks: %w", err)
	}
	defer rows.Close()

	seen := map[int64]bool{}
	out := []int64{}
	for rows.Next() {
		var blocker, blocked int64
		if err := rows.Scan(&blocker, &blocked); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		other := blocked
		if blocked == userID {
			other = blocker
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list related blocks: %w", err)
	}
	return out, nil
}

func (s *sqlBlockStore) ListBlocked(ctx context.Context, blockerID int64) ([]int64, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT blocked_id FROM blocks WHERE blocker_id = ? ORDER BY blocked_id`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	return out, nil
}

type sqlGroupStore struct {
	sqlBase
}

const groupColumns = `g.id, g.name, g.description, g.creator_id, g.active, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var group models.Group
	if err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.CreatorID,
		&group.Active,
		&group.CreatedAt,
		&group.UpdatedAt,
		&group.MemberCount,
	); err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *sqlGroupStore) Create(ctx context.Context, group *models.Group, memberIDs []int64) error {
	if group == nil || group.ID == "" {
		return fmt.Errorf("group is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create group: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck

	_, err = s.exec(ctx, tx,
		`INSERT INTO chat_groups (id, name, description, creator_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, group.CreatorID, group.Active, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create group: %w", err)
	}
	for _, userID := range memberIDs {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
			 ON CONFLICT (group_id, user_id) DO NOTHING`,
			group.ID, userID, group.CreatedAt); err != nil {
			return fmt.Errorf("add group member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create group: %w", err)
	}
	return nil
}

func (s *sqlGroupStore) Get(ctx context.Context, id string) (*models.Group, error) {
	group, err := scanGroup(s.queryRow(ctx, s.db,
		`SELECT `+groupColumns+` FROM chat_groups g WHERE g.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

func (s *sqlGroupStore) Update(ctx context.Context, id, name, description string, updatedAt time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE chat_groups SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlGroupStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE chat_groups SET active = ?, updated_at = ? WHERE id = ?`, false, at, id)
	if err != nil {
		return fmt.Errorf("deactivate group: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlGroupStore) AddMember(ctx context.Context, groupID string, userID int64, joinedAt time.Time) (bool, error) {
	res, err := s.exec(ctx, s.db,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, joinedAt)
	if err != nil {
		return false, fmt.Errorf("add group member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add group member: %w", err)
	}
	return n > 0, nil
}

func (s *sqlGroupStore) RemoveMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	res, err := s.exec(ctx, s.db,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("remove group member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove group member: %w", err)
	}
	return n > 0, nil
}

func (s *sqlGroupStore) IsMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	var count int
	err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

func (s *sqlGroupStore) Members(ctx context.Context, groupID string) ([]models.Member, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT m.user_id, COALESCE(u.username, ''), m.joined_at
		 FROM group_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY m.joined_at, m.user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := []models.Member{}
	for rows.Next() {
		member := models.Member{GroupID: groupID}
		if err := rows.Scan(&member.UserID, &member.Username, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

func (s *sqlGroupStore) ListForUser(ctx context.Context, userID int64) ([]*models.Group, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+groupColumns+`
		 FROM chat_groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? AND g.active = ?
		 ORDER BY g.created_at DESC`, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	defer rows.Close()

	out := []*models.Group{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return out, nil
}

type sqlMessageStore struct {
	sqlBase
}

const messageColumns = `m.id, m.sender_id, COALESCE(u.username, ''), m.is_group, m.group_id, m.recipient_id,
	m.content, m.created_at, m.edited_at, m.deleted_for_everyone`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg         models.Message
		groupID     sql.NullString
		recipientID sql.NullInt64
		editedAt    sql.NullTime
	)
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.IsGroup,
		&groupID,
		&recipientID,
		&msg.Content,
		&msg.CreatedAt,
		&editedAt,
		&msg.DeletedForEveryone,
	); err != nil {
		return nil, err
	}
	msg.GroupID = groupID.String
	msg.RecipientID = recipientID.Int64
	if editedAt.Valid {
		edited := editedAt.Time
		msg.EditedAt = &edited
	}
	return &msg, nil
}

func (s *sqlMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	groupID := sql.NullString{String: msg.GroupID, Valid: msg.IsGroup}
	recipientID := sql.NullInt64{Int64: msg.RecipientID, Valid: !msg.IsGroup}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO messages (id, sender_id, is_group, group_id, recipient_id, content, created_at, deleted_for_everyone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.IsGroup, groupID, recipientID, msg.Content, msg.CreatedAt, false)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *sqlMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.queryRow(ctx, s.db,
		`SELECT `+messageColumns+` FROM messages m LEFT JOIN users u ON u.id = m.sender_id WHERE m.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	rows, err := s.query(ctx, s.db,
		`SELECT user_id FROM message_hidden WHERE message_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get message visibility: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan message visibility: %w", err)
		}
		msg.DeletedFor = append(msg.DeletedFor, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get message visibility: %w", err)
	}
	return msg, nil
}

func (s *sqlMessageStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`, content, editedAt, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlMessageStore) DeleteForEveryone(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE messages SET content = '', deleted_for_everyone = ? WHERE id = ?`, true, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlMessageStore) HideFor(ctx context.Context, id string, userID int64) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO message_hidden (message_id, user_id, hidden_at) VALUES (?, ?, ?)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

func (s *sqlMessageStore) ListGroup(ctx context.Context, groupID string, q MessageQuery) ([]*models.Message, error) {
	return s.list(ctx, `m.is_group = ? AND m.group_id = ?`, []any{true, groupID}, q)
}

func (s *sqlMessageStore) ListDirect(ctx context.Context, a, b int64, q MessageQuery) ([]*models.Message, error) {
	return s.list(ctx,
		`m.is_group = ? AND ((m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?))`,
		[]any{false, a, b, b, a}, q)
}

func (s *sqlMessageStore) list(ctx context.Context, where string, args []any, q MessageQuery) ([]*models.Message, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + messageColumns + ` FROM messages m LEFT JOIN users u ON u.id = m.sender_id WHERE `)
	b.WriteString(where)
	b.WriteString(` AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?)`)
	args = append(args, q.ViewerID)
	if !q.Before.IsZero() {
		b.WriteString(` AND m.created_at < ?`)
		args = append(args, q.Before)
	}
	b.WriteString(` ORDER BY m.created_at DESC`)
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.query(ctx, s.db, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

type sqlReactionStore struct {
	sqlBase
}

func (s *sqlReactionStore) Upsert(ctx context.Context, reaction *models.Reaction) error {
	if reaction == nil || reaction.MessageID == "" || strings.TrimSpace(reaction.Reaction) == "" {
		return fmt.Errorf("reaction is required")
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO reactions (message_id, user_id, reaction, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (message_id, user_id) DO UPDATE SET reaction = excluded.reaction, created_at = excluded.created_at`,
		reaction.MessageID, reaction.UserID, reaction.Reaction, reaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (s *sqlReactionStore) Delete(ctx context.Context, messageID string, userID int64) (bool, error) {
	res, err := s.exec(ctx, s.db,
		`DELETE FROM reactions WHERE message_id = ? AND user_id = ?`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	return n > 0, nil
}

func (s *sqlReactionStore) ListForMessages(ctx context.Context, messageIDs []string) (map[string][]models.Reaction, error) {
	out := map[string][]models.Reaction{}
	if len(messageIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(messageIDs))
	for _, id := range messageIDs {
		args = append(args, id)
	}
	rows, err := s.query(ctx, s.db,
		`SELECT r.message_id, r.user_id, COALESCE(u.username, ''), r.reaction, r.created_at
		 FROM reactions r LEFT JOIN users u ON u.id = r.user_id
		 WHERE r.message_id IN (`+placeholders(len(args))+`)
		 ORDER BY r.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Username, &r.Reaction, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
