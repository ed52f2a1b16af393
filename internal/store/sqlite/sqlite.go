package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatcore-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at dbPath and applies the schema.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ==== UserStore implementation ====

// CreateUser creates a user bound to the given connection.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, connectionID string) (*store.User, error) {
	query := `
		INSERT INTO users (username, connection_ref)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, nullString(connectionID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, connection_ref, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by exact username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, connection_ref, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var connRef sql.NullString
	err := row.Scan(&user.ID, &user.Username, &connRef, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if connRef.Valid {
		user.ConnectionID = &connRef.String
	}
	return &user, nil
}

// UpdateUserConnection overwrites the user's connection reference.
func (s *SQLiteStore) UpdateUserConnection(ctx context.Context, userID int64, connectionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET connection_ref = ? WHERE id = ?`,
		nullString(connectionID), userID,
	)
	if err != nil {
		return fmt.Errorf("update user connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return nil
}

// ClearUserConnection nulls the connection reference if it still equals connectionID.
func (s *SQLiteStore) ClearUserConnection(ctx context.Context, userID int64, connectionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET connection_ref = NULL WHERE id = ? AND connection_ref = ?`,
		userID, connectionID,
	)
	if err != nil {
		return false, fmt.Errorf("clear user connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ResetConnections nulls every connection reference.
func (s *SQLiteStore) ResetConnections(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET connection_ref = NULL WHERE connection_ref IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("reset connections: %w", err)
	}
	return result.RowsAffected()
}

// ==== ChannelStore implementation ====

// CreateChannel creates a new channel.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, description *string) (*store.Channel, error) {
	query := `
		INSERT INTO channels (name, description)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert channel %q: %w", name, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetChannelByID(ctx, id)
}

// GetChannelByID retrieves a channel by ID.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id int64) (*store.Channel, error) {
	query := `
		SELECT id, name, description, created_at
		FROM channels
		WHERE id = ?
	`
	return scanChannel(s.db.QueryRowContext(ctx, query, id))
}

// GetChannelByName retrieves a channel by name.
func (s *SQLiteStore) GetChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	query := `
		SELECT id, name, description, created_at
		FROM channels
		WHERE name = ?
	`
	return scanChannel(s.db.QueryRowContext(ctx, query, name))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*store.Channel, error) {
	var channel store.Channel
	var description sql.NullString
	err := row.Scan(&channel.ID, &channel.Name, &description, &channel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}
	if description.Valid {
		channel.Description = &description.String
	}
	return &channel, nil
}

// ListChannels lists all channels in creation order.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM channels
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*store.Channel, 0)
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}

	return channels, rows.Err()
}

// SeedChannels creates the given channels only if the table is empty.
func (s *SQLiteStore) SeedChannels(ctx context.Context, seeds []store.ChannelSeed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for _, seed := range seeds {
		if seed.Name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channels (name, description) VALUES (?, ?)`,
			seed.Name, nullString(seed.Description),
		); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return 0, fmt.Errorf("insert seed channel %q: %w", seed.Name, err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return created, nil
}

// ==== MessageStore implementation ====

// SaveMessage appends a message; the timestamp is assigned by the database at commit.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (content, user_id, channel_id) VALUES (?, ?, ?)`,
		msg.Content, msg.UserID, msg.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	saved, err := s.getMessageByID(ctx, id)
	if err != nil {
		return err
	}
	*msg = *saved
	return nil
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	if err := row.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListRecentMessages returns at most limit of the newest messages, oldest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]*store.Message, error) {
	messages := make([]*store.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest first; callers want chronological order.
	slices.Reverse(messages)
	return messages, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
