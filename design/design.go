// Package design holds the domain records for home-design projects: the
// project being redesigned, its conversations, and the append-only edit
// history produced by completed transformations.
package design

import (
	"time"

	"github.com/homecanvas/homecanvas/message"
)

// EditTypeChatRequest marks edits initiated through the conversation
// dispatcher, as opposed to future bulk or preset edit sources.
const EditTypeChatRequest = "chat_request"

// Project is a single room-redesign workspace. CurrentImageURL advances only
// when a transformation commits; OriginalImageURL never changes.
type Project struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	OriginalImageURL string    `json:"original_image_url"`
	CurrentImageURL  string    `json:"current_image_url"`
	RoomType         string    `json:"room_type,omitempty"`
	StylePreference  string    `json:"style_preference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Conversation is the ordered message history of one chat thread on a
// project. Created lazily on the first turn and only ever appended to.
type Conversation struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	Messages  []message.Message `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Edit is an immutable audit record of one completed transformation.
// BeforeImageURL is the project image captured when the generation was
// scheduled, not whatever the project points at when the edit commits.
type Edit struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	ConversationID string    `json:"conversation_id"`
	Prompt         string    `json:"prompt"`
	BeforeImageURL string    `json:"before_image_url"`
	AfterImageURL  string    `json:"after_image_url"`
	EditType       string    `json:"edit_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// User carries the slice of account state this core reads and mutates.
// Credits never go below zero; debits clamp.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
	Active  bool   `json:"active"`
}

// Option is one curated design suggestion returned by the options helper.
type Option struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	KeyChanges  []string `json:"key_changes"`
}

// FallbackOption is returned when the model's options payload cannot be
// parsed; the turn still succeeds with one generic suggestion.
func FallbackOption(roomType string) Option {
	if roomType == "" {
		roomType = "room"
	}
	return Option{
		Name:        "Refresh the space",
		Description: "A balanced update for your " + roomType + " keeping the current layout while refreshing colors, lighting, and key furniture pieces.",
		KeyChanges:  []string{"updated color palette", "improved lighting", "refreshed furniture arrangement"},
	}
}
