// Package store provides transactional persistence for projects,
// conversations, edits, and user credits. All mutations for one chat turn go
// through a single transaction so the turn commits or rolls back as a unit.
package store

import (
	"context"

	"github.com/homecanvas/homecanvas/design"
)

// Store is the read side plus the transactional entry point.
type Store interface {
	// GetProject returns the project only if it exists and is owned by
	// userID; otherwise errors.ErrNotFound.
	GetProject(ctx context.Context, projectID, userID string) (*design.Project, error)

	// GetUser returns the user record with its current credit balance.
	GetUser(ctx context.Context, userID string) (*design.User, error)

	// GetUserByToken resolves an unexpired access token to its user;
	// unknown or expired tokens return errors.ErrUnauthorized.
	GetUserByToken(ctx context.Context, token string) (*design.User, error)

	// GetConversation returns a conversation by ID.
	GetConversation(ctx context.Context, conversationID string) (*design.Conversation, error)

	// ListEdits returns a project's edit history, newest first.
	ListEdits(ctx context.Context, projectID string) ([]*design.Edit, error)

	// RunTurn executes fn inside one transaction. Every mutation fn makes
	// commits together or not at all.
	RunTurn(ctx context.Context, fn func(Tx) error) error

	Close() error
}

// Tx is the mutation surface available inside a turn transaction. Row
// lookups lock the row for the duration of the transaction, serializing
// writers per project.
type Tx interface {
	GetProjectForUpdate(ctx context.Context, projectID, userID string) (*design.Project, error)
	GetConversationForUpdate(ctx context.Context, conversationID string) (*design.Conversation, error)

	// SaveConversation inserts or replaces the conversation's messages.
	SaveConversation(ctx context.Context, conv *design.Conversation) error

	// UpdateProjectImage advances the project's current image.
	UpdateProjectImage(ctx context.Context, projectID, imageURL string) error

	// InsertEdit appends an immutable edit record.
	InsertEdit(ctx context.Context, edit *design.Edit) error

	// DebitCredits subtracts n credits, clamping at zero, and returns the
	// remaining balance.
	DebitCredits(ctx context.Context, userID string, n int) (int, error)
}
