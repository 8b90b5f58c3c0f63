// Package orchestrator is the entry point for one chat turn: validate the
// caller and project, consult the dispatcher, branch on its decision, persist
// the turn atomically, and either answer synchronously or queue a background
// generation that reports through the event bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/homecanvas/homecanvas/design"
	"github.com/homecanvas/homecanvas/dispatch"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/events"
	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/pipeline"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/pkg/telemetry"
	"github.com/homecanvas/homecanvas/store"
	"github.com/homecanvas/homecanvas/worker"
)

// Kind discriminates what a chat turn produced.
type Kind string

const (
	KindConversation           Kind = "conversation"
	KindDesignOptions          Kind = "design_options"
	KindDesignGeneration       Kind = "design_generation"
	KindDesignGenerationQueued Kind = "design_generation_queued"
)

// ChatRequest is one user message against a project.
type ChatRequest struct {
	ProjectID      string `json:"project_id"`
	UserID         string `json:"-"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the synchronous reply to a chat turn. ImageURL is set only
// on the synchronous generation path; queued turns deliver the image through
// the event bus when the background unit completes.
type ChatResponse struct {
	ConversationID string          `json:"conversation_id"`
	Message        message.Message `json:"message"`
	ImageURL       string          `json:"image_url,omitempty"`
	Kind           Kind            `json:"kind"`
	Options        []design.Option `json:"options,omitempty"`
}

// Config holds orchestrator configuration
type Config struct {
	// SyncGeneration runs transformations inline within the turn instead
	// of queuing them, for callers without event-stream support.
	SyncGeneration bool
}

// Orchestrator coordinates one chat turn across the dispatcher, pipeline,
// store, and event bus.
type Orchestrator struct {
	config     *Config
	store      store.Store
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	bus        *events.Bus
	pool       *worker.Pool
}

// New creates an orchestrator.
func New(st store.Store, d *dispatch.Dispatcher, p *pipeline.Pipeline, bus *events.Bus, pool *worker.Pool, config *Config) *Orchestrator {
	if config == nil {
		config = &Config{}
	}
	return &Orchestrator{
		config:     config,
		store:      st,
		dispatcher: d,
		pipeline:   p,
		bus:        bus,
		pool:       pool,
	}
}

// ackQueued is the assistant reply for turns whose transformation was
// scheduled in the background.
const ackQueued = "I'm working on your updated design now. It will appear here in just a moment."

// HandleChatTurn runs one turn of the conversation state machine. Ownership
// and credit checks happen before any model call; all persistence for the
// turn commits in a single transaction.
func (o *Orchestrator) HandleChatTurn(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator.HandleChatTurn",
		trace.WithAttributes(attribute.String("project_id", req.ProjectID)))
	var turnErr error
	defer func() { telemetry.End(span, turnErr) }()

	if req.Message == "" {
		turnErr = fmt.Errorf("message: %w", hcerrors.ErrInvalidInput)
		return nil, turnErr
	}

	// validate
	project, err := o.store.GetProject(ctx, req.ProjectID, req.UserID)
	if err != nil {
		turnErr = err
		return nil, err
	}
	user, err := o.store.GetUser(ctx, req.UserID)
	if err != nil {
		turnErr = err
		return nil, err
	}
	if user.Credits <= 0 {
		turnErr = hcerrors.ErrInsufficientCredits
		return nil, turnErr
	}

	conv, err := o.loadConversation(ctx, req)
	if err != nil {
		turnErr = err
		return nil, err
	}

	// dispatch
	decision, err := o.dispatcher.Dispatch(ctx, project, conv.Messages, req.Message)
	if err != nil {
		turnErr = err
		return nil, err
	}

	// branch
	switch decision.Action {
	case dispatch.ActionProvideOptions:
		return o.finishOptionsTurn(ctx, project, conv, req, decision)
	case dispatch.ActionGenerateTransformation:
		if o.config.SyncGeneration {
			return o.finishSyncGenerationTurn(ctx, project, conv, req, decision)
		}
		return o.finishQueuedGenerationTurn(ctx, project, conv, req, decision)
	default:
		return o.finishConversationTurn(ctx, conv, req, decision)
	}
}

// loadConversation returns the referenced conversation, or a fresh one when
// no reference was given or the referenced one no longer exists. A store
// failure fails the turn rather than silently forking the thread. A
// conversation from another project is not visible to this turn.
func (o *Orchestrator) loadConversation(ctx context.Context, req *ChatRequest) (*design.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := o.store.GetConversation(ctx, req.ConversationID)
		switch {
		case err == nil:
			if conv.ProjectID != req.ProjectID {
				return nil, fmt.Errorf("conversation: %w", hcerrors.ErrNotFound)
			}
			return conv, nil
		case !errors.Is(err, hcerrors.ErrNotFound):
			return nil, fmt.Errorf("load conversation: %w", err)
		}
	}
	return &design.Conversation{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
	}, nil
}

func (o *Orchestrator) finishConversationTurn(ctx context.Context, conv *design.Conversation, req *ChatRequest, decision *dispatch.Decision) (*ChatResponse, error) {
	assistant := message.New(message.RoleAssistant, decision.Reply)
	if err := o.persistTurn(ctx, conv, req, assistant, 0); err != nil {
		return nil, err
	}
	return &ChatResponse{
		ConversationID: conv.ID,
		Message:        assistant,
		Kind:           KindConversation,
	}, nil
}

func (o *Orchestrator) finishOptionsTurn(ctx context.Context, project *design.Project, conv *design.Conversation, req *ChatRequest, decision *dispatch.Decision) (*ChatResponse, error) {
	options := o.dispatcher.GenerateOptions(ctx, project, decision.Analysis, req.Message)

	reply := decision.Reply
	if reply == "" {
		reply = "Here are some design directions for your space."
	}
	assistant := message.New(message.RoleAssistant, reply)
	if err := o.persistTurn(ctx, conv, req, assistant, 0); err != nil {
		return nil, err
	}
	return &ChatResponse{
		ConversationID: conv.ID,
		Message:        assistant,
		Kind:           KindDesignOptions,
		Options:        options,
	}, nil
}

// finishQueuedGenerationTurn debits one credit, persists the turn, then
// schedules the pipeline as a background unit. The before image is captured
// from the locked project row inside the turn transaction, so a racing
// generation on the same project cannot contaminate it.
func (o *Orchestrator) finishQueuedGenerationTurn(ctx context.Context, project *design.Project, conv *design.Conversation, req *ChatRequest, decision *dispatch.Decision) (*ChatResponse, error) {
	reply := decision.Reply
	if reply == "" {
		reply = ackQueued
	}
	assistant := message.New(message.RoleAssistant, reply)

	task := &generationTask{
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		ConversationID: conv.ID,
		Request:        decision.Request,
		RoomType:       project.RoomType,
		Style:          project.StylePreference,
		StyleNotes:     decision.StyleNotes,
	}

	err := o.store.RunTurn(ctx, func(tx store.Tx) error {
		locked, err := tx.GetProjectForUpdate(ctx, req.ProjectID, req.UserID)
		if err != nil {
			return err
		}
		task.BeforeImage = locked.CurrentImageURL

		if _, err := tx.DebitCredits(ctx, req.UserID, 1); err != nil {
			return err
		}
		idx, err := saveTurnMessages(ctx, tx, conv, req.Message, assistant)
		if err != nil {
			return err
		}
		task.MessageIndex = idx
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !o.pool.Go("generation:"+task.ProjectID, func(ctx context.Context) {
		o.runGenerationTask(ctx, task)
	}) {
		// Pool closed during shutdown. The turn already committed, so
		// report through the bus like any other background failure.
		o.publishError(task, "service is shutting down, please retry")
	}

	return &ChatResponse{
		ConversationID: conv.ID,
		Message:        assistant,
		Kind:           KindDesignGenerationQueued,
	}, nil
}

// finishSyncGenerationTurn runs the pipeline inline and commits the image,
// edit record, credit debit, and messages in one transaction.
func (o *Orchestrator) finishSyncGenerationTurn(ctx context.Context, project *design.Project, conv *design.Conversation, req *ChatRequest, decision *dispatch.Decision) (*ChatResponse, error) {
	beforeImage := project.CurrentImageURL
	newImageURL, err := o.pipeline.Run(ctx, beforeImage, decision.Request, project.RoomType, project.StylePreference, decision.StyleNotes)
	if err != nil {
		return nil, err
	}

	reply := decision.Reply
	if reply == "" {
		reply = "I've made the changes you requested! Here's your updated design."
	}
	assistant := message.New(message.RoleAssistant, reply)
	assistant.ImageURL = newImageURL

	err = o.store.RunTurn(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProjectForUpdate(ctx, req.ProjectID, req.UserID); err != nil {
			return err
		}
		if _, err := tx.DebitCredits(ctx, req.UserID, 1); err != nil {
			return err
		}
		if err := tx.UpdateProjectImage(ctx, req.ProjectID, newImageURL); err != nil {
			return err
		}
		if err := tx.InsertEdit(ctx, &design.Edit{
			ID:             uuid.NewString(),
			ProjectID:      req.ProjectID,
			ConversationID: conv.ID,
			Prompt:         decision.Request,
			BeforeImageURL: beforeImage,
			AfterImageURL:  newImageURL,
			EditType:       design.EditTypeChatRequest,
		}); err != nil {
			return err
		}
		_, err := saveTurnMessages(ctx, tx, conv, req.Message, assistant)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		ConversationID: conv.ID,
		Message:        assistant,
		ImageURL:       newImageURL,
		Kind:           KindDesignGeneration,
	}, nil
}

// persistTurn appends the user message and assistant reply, debiting credits
// when the turn consumed any, all in one transaction.
func (o *Orchestrator) persistTurn(ctx context.Context, conv *design.Conversation, req *ChatRequest, assistant message.Message, debit int) error {
	return o.store.RunTurn(ctx, func(tx store.Tx) error {
		if debit > 0 {
			if _, err := tx.DebitCredits(ctx, req.UserID, debit); err != nil {
				return err
			}
		}
		_, err := saveTurnMessages(ctx, tx, conv, req.Message, assistant)
		return err
	})
}

// saveTurnMessages re-reads the conversation under the transaction lock and
// appends the turn's two messages onto the fresh copy. The snapshot loaded
// before the model call is only used for its identity; any messages committed
// while the model call was in flight are kept. Returns the index of the
// appended assistant message.
func saveTurnMessages(ctx context.Context, tx store.Tx, conv *design.Conversation, userText string, assistant message.Message) (int, error) {
	fresh, err := tx.GetConversationForUpdate(ctx, conv.ID)
	if errors.Is(err, hcerrors.ErrNotFound) {
		fresh = &design.Conversation{ID: conv.ID, ProjectID: conv.ProjectID}
	} else if err != nil {
		return 0, err
	}
	fresh.Messages = append(fresh.Messages, message.New(message.RoleUser, userText), assistant)
	if err := tx.SaveConversation(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh.Messages) - 1, nil
}

func (o *Orchestrator) publishError(task *generationTask, msg string) {
	o.bus.Publish(task.ProjectID, events.Event{
		Type:           events.TypeGenerationError,
		ConversationID: task.ConversationID,
		Error:          msg,
	})
}

// Close stops the background pool, waiting for in-flight generations.
func (o *Orchestrator) Close() {
	o.pool.Close()
	logging.WithComponent("orchestrator").Info("orchestrator stopped")
}
