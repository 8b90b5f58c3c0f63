package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/message"
)

// InMemoryStore is a map-backed Store with the same transactional contract
// as the PostgreSQL backend. Intended for tests.
type InMemoryStore struct {
	mu            sync.Mutex
	users         map[string]*design.User
	projects      map[string]*design.Project
	conversations map[string]*design.Conversation
	tokens        map[string]string
	edits         []*design.Edit
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]*design.User),
		projects:      make(map[string]*design.Project),
		conversations: make(map[string]*design.Conversation),
		tokens:        make(map[string]string),
	}
}

// PutUser seeds a user record.
func (s *InMemoryStore) PutUser(user *design.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.ID] = &u
}

// PutProject seeds a project record.
func (s *InMemoryStore) PutProject(project *design.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *project
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	s.projects[project.ID] = &p
}

// PutToken seeds an access token for a user.
func (s *InMemoryStore) PutToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// Edits returns all edit rows, oldest first. Test inspection helper.
func (s *InMemoryStore) Edits() []*design.Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*design.Edit, len(s.edits))
	for i, e := range s.edits {
		copied := *e
		out[i] = &copied
	}
	return out
}

func (s *InMemoryStore) GetProject(ctx context.Context, projectID, userID string) (*design.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.UserID != userID {
		return nil, fmt.Errorf("project: %w", hcerrors.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, userID string) (*design.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, hcerrors.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *InMemoryStore) GetUserByToken(ctx context.Context, token string) (*design.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("token: %w", hcerrors.ErrUnauthorized)
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("token: %w", hcerrors.ErrUnauthorized)
	}
	copied := *u
	return &copied, nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, conversationID string) (*design.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation: %w", hcerrors.ErrNotFound)
	}
	return cloneConversation(conv), nil
}

func (s *InMemoryStore) ListEdits(ctx context.Context, projectID string) ([]*design.Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*design.Edit, 0)
	for _, e := range s.edits {
		if e.ProjectID == projectID {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RunTurn stages all mutations and applies them only if fn succeeds. The
// store lock is held for the whole turn, which also serializes writers the
// way row locks do in the PostgreSQL backend.
func (s *InMemoryStore) RunTurn(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &inMemoryTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

type inMemoryTx struct {
	store *InMemoryStore

	savedConversations []*design.Conversation
	projectImages      map[string]string
	newEdits           []*design.Edit
	creditDebits       map[string]int
}

func (t *inMemoryTx) GetProjectForUpdate(ctx context.Context, projectID, userID string) (*design.Project, error) {
	p, ok := t.store.projects[projectID]
	if !ok || p.UserID != userID {
		return nil, fmt.Errorf("project: %w", hcerrors.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (t *inMemoryTx) GetConversationForUpdate(ctx context.Context, conversationID string) (*design.Conversation, error) {
	conv, ok := t.store.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation: %w", hcerrors.ErrNotFound)
	}
	return cloneConversation(conv), nil
}

func (t *inMemoryTx) SaveConversation(ctx context.Context, conv *design.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation cannot be nil")
	}
	t.savedConversations = append(t.savedConversations, cloneConversation(conv))
	return nil
}

func (t *inMemoryTx) UpdateProjectImage(ctx context.Context, projectID, imageURL string) error {
	if _, ok := t.store.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, hcerrors.ErrNotFound)
	}
	if t.projectImages == nil {
		t.projectImages = make(map[string]string)
	}
	t.projectImages[projectID] = imageURL
	return nil
}

func (t *inMemoryTx) InsertEdit(ctx context.Context, edit *design.Edit) error {
	if edit == nil || edit.ID == "" {
		return fmt.Errorf("edit cannot be nil")
	}
	copied := *edit
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	t.newEdits = append(t.newEdits, &copied)
	return nil
}

func (t *inMemoryTx) DebitCredits(ctx context.Context, userID string, n int) (int, error) {
	u, ok := t.store.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, hcerrors.ErrNotFound)
	}
	if t.creditDebits == nil {
		t.creditDebits = make(map[string]int)
	}
	t.creditDebits[userID] += n
	remaining := u.Credits - t.creditDebits[userID]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (t *inMemoryTx) apply() {
	now := time.Now().UTC()
	for _, conv := range t.savedConversations {
		existing, ok := t.store.conversations[conv.ID]
		if ok {
			existing.Messages = message.Clone(conv.Messages)
			existing.UpdatedAt = now
			continue
		}
		stored := cloneConversation(conv)
		stored.CreatedAt = now
		stored.UpdatedAt = now
		t.store.conversations[conv.ID] = stored
	}
	for projectID, url := range t.projectImages {
		if p, ok := t.store.projects[projectID]; ok {
			p.CurrentImageURL = url
			p.UpdatedAt = now
		}
	}
	t.store.edits = append(t.store.edits, t.newEdits...)
	for userID, n := range t.creditDebits {
		if u, ok := t.store.users[userID]; ok {
			u.Credits -= n
			if u.Credits < 0 {
				u.Credits = 0
			}
		}
	}
}

func cloneConversation(conv *design.Conversation) *design.Conversation {
	copied := *conv
	copied.Messages = message.Clone(conv.Messages)
	return &copied
}
