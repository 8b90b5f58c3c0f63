package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/message"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.createSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		credits INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE TABLE IF NOT EXISTS home_design_projects (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id),
		name VARCHAR(255) NOT NULL,
		description TEXT,
		original_image_url TEXT NOT NULL,
		current_image_url TEXT NOT NULL,
		room_type VARCHAR(64),
		style_preference VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS home_design_conversations (
		id VARCHAR(64) PRIMARY KEY,
		project_id VARCHAR(64) NOT NULL REFERENCES home_design_projects(id),
		messages JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS home_design_edits (
		id VARCHAR(64) PRIMARY KEY,
		project_id VARCHAR(64) NOT NULL REFERENCES home_design_projects(id),
		conversation_id VARCHAR(64),
		prompt TEXT NOT NULL,
		before_image_url TEXT NOT NULL,
		after_image_url TEXT NOT NULL,
		edit_type VARCHAR(64) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS access_tokens (
		token VARCHAR(128) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id),
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_project ON home_design_conversations(project_id);
	CREATE INDEX IF NOT EXISTS idx_edits_project ON home_design_edits(project_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// GetProject returns the project if owned by userID.
func (s *PostgresStore) GetProject(ctx context.Context, projectID, userID string) (*design.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, COALESCE(description, ''), original_image_url, current_image_url,
		        COALESCE(room_type, ''), COALESCE(style_preference, ''), created_at, updated_at
		 FROM home_design_projects WHERE id = $1 AND user_id = $2`,
		projectID, userID))
}

// GetUser returns a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*design.User, error) {
	user := &design.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, credits, active FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.Credits, &user.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", userID, hcerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByToken resolves an unexpired access token to its user.
func (s *PostgresStore) GetUserByToken(ctx context.Context, token string) (*design.User, error) {
	user := &design.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.credits, u.active
		 FROM users u JOIN access_tokens t ON t.user_id = u.id
		 WHERE t.token = $1 AND t.expires_at > now()`, token).
		Scan(&user.ID, &user.Email, &user.Credits, &user.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("token: %w", hcerrors.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return user, nil
}

// GetConversation returns a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (*design.Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, messages, created_at, updated_at
		 FROM home_design_conversations WHERE id = $1`, conversationID))
}

// ListEdits returns a project's edits, newest first.
func (s *PostgresStore) ListEdits(ctx context.Context, projectID string) ([]*design.Edit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, COALESCE(conversation_id, ''), prompt, before_image_url, after_image_url, edit_type, created_at
		 FROM home_design_edits WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	defer rows.Close()

	edits := make([]*design.Edit, 0)
	for rows.Next() {
		edit := &design.Edit{}
		if err := rows.Scan(&edit.ID, &edit.ProjectID, &edit.ConversationID, &edit.Prompt,
			&edit.BeforeImageURL, &edit.AfterImageURL, &edit.EditType, &edit.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		edits = append(edits, edit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edits: %w", err)
	}
	return edits, nil
}

// RunTurn runs fn inside one transaction, rolling back on any error.
func (s *PostgresStore) RunTurn(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetProjectForUpdate(ctx context.Context, projectID, userID string) (*design.Project, error) {
	return scanProject(t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, name, COALESCE(description, ''), original_image_url, current_image_url,
		        COALESCE(room_type, ''), COALESCE(style_preference, ''), created_at, updated_at
		 FROM home_design_projects WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		projectID, userID))
}

func (t *postgresTx) GetConversationForUpdate(ctx context.Context, conversationID string) (*design.Conversation, error) {
	return scanConversation(t.tx.QueryRowContext(ctx,
		`SELECT id, project_id, messages, created_at, updated_at
		 FROM home_design_conversations WHERE id = $1 FOR UPDATE`, conversationID))
}

func (t *postgresTx) SaveConversation(ctx context.Context, conv *design.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation cannot be nil")
	}
	raw, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO home_design_conversations (id, project_id, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()`,
		conv.ID, conv.ProjectID, raw)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateProjectImage(ctx context.Context, projectID, imageURL string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE home_design_projects SET current_image_url = $2, updated_at = now() WHERE id = $1`,
		projectID, imageURL)
	if err != nil {
		return fmt.Errorf("failed to update project image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project %s: %w", projectID, hcerrors.ErrNotFound)
	}
	return nil
}

func (t *postgresTx) InsertEdit(ctx context.Context, edit *design.Edit) error {
	if edit == nil || edit.ID == "" {
		return fmt.Errorf("edit cannot be nil")
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO home_design_edits (id, project_id, conversation_id, prompt, before_image_url, after_image_url, edit_type, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, now())`,
		edit.ID, edit.ProjectID, edit.ConversationID, edit.Prompt,
		edit.BeforeImageURL, edit.AfterImageURL, edit.EditType)
	if err != nil {
		return fmt.Errorf("failed to insert edit: %w", err)
	}
	return nil
}

func (t *postgresTx) DebitCredits(ctx context.Context, userID string, n int) (int, error) {
	var remaining int
	err := t.tx.QueryRowContext(ctx,
		`UPDATE users SET credits = GREATEST(credits - $2, 0) WHERE id = $1 RETURNING credits`,
		userID, n).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("user %s: %w", userID, hcerrors.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}
	return remaining, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*design.Project, error) {
	p := &design.Project{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.OriginalImageURL,
		&p.CurrentImageURL, &p.RoomType, &p.StylePreference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project: %w", hcerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return p, nil
}

func scanConversation(row rowScanner) (*design.Conversation, error) {
	conv := &design.Conversation{}
	var raw []byte
	var createdAt, updatedAt time.Time
	err := row.Scan(&conv.ID, &conv.ProjectID, &raw, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation: %w", hcerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.CreatedAt = createdAt
	conv.UpdatedAt = updatedAt
	conv.Messages = make([]message.Message, 0)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &conv.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
	}
	return conv, nil
}
