package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/events"
	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/store"
)

// generationTask carries everything a background generation needs to finish
// independently of the HTTP turn that scheduled it. BeforeImage is the
// project image at schedule time; MessageIndex is the position of the
// assistant acknowledgement the completed image attaches to.
type generationTask struct {
	ProjectID      string
	UserID         string
	ConversationID string
	Request        string
	RoomType       string
	Style          string
	StyleNotes     string
	BeforeImage    string
	MessageIndex   int
}

// runGenerationTask executes one queued transformation. It opens its own
// transaction to commit results and reports success or failure only through
// the event bus; a failure here never affects the already-committed turn.
func (o *Orchestrator) runGenerationTask(ctx context.Context, task *generationTask) {
	log := logging.WithComponent("orchestrator").With(
		"project_id", task.ProjectID, "conversation_id", task.ConversationID)

	newImageURL, err := o.pipeline.Run(ctx, task.BeforeImage, task.Request, task.RoomType, task.Style, task.StyleNotes)
	if err != nil {
		log.Error("background generation failed", "error", err)
		o.publishError(task, userFacingGenerationError(err))
		return
	}

	err = o.store.RunTurn(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProjectForUpdate(ctx, task.ProjectID, task.UserID); err != nil {
			return err
		}
		if err := tx.UpdateProjectImage(ctx, task.ProjectID, newImageURL); err != nil {
			return err
		}
		if err := tx.InsertEdit(ctx, &design.Edit{
			ID:             uuid.NewString(),
			ProjectID:      task.ProjectID,
			ConversationID: task.ConversationID,
			Prompt:         task.Request,
			BeforeImageURL: task.BeforeImage,
			AfterImageURL:  newImageURL,
			EditType:       design.EditTypeChatRequest,
		}); err != nil {
			return err
		}
		return attachImage(ctx, tx, task, newImageURL)
	})
	if err != nil {
		log.Error("background generation commit failed", "error", err)
		o.publishError(task, "We couldn't save your updated design. Please try again.")
		return
	}

	log.Info("background generation complete", "image_url", newImageURL)
	o.bus.Publish(task.ProjectID, events.Event{
		Type:           events.TypeGenerationComplete,
		NewImageURL:    newImageURL,
		ConversationID: task.ConversationID,
	})
}

// attachImage sets the completed image on the assistant acknowledgement
// recorded when the generation was scheduled. If the message is no longer
// where the turn left it, the attach is skipped rather than guessed.
func attachImage(ctx context.Context, tx store.Tx, task *generationTask, imageURL string) error {
	conv, err := tx.GetConversationForUpdate(ctx, task.ConversationID)
	if err != nil {
		return err
	}
	if task.MessageIndex < 0 || task.MessageIndex >= len(conv.Messages) {
		logging.WithComponent("orchestrator").Warn("acknowledgement message missing, skipping image attach",
			"conversation_id", task.ConversationID, "index", task.MessageIndex)
		return nil
	}
	msg := &conv.Messages[task.MessageIndex]
	if msg.Role != message.RoleAssistant {
		logging.WithComponent("orchestrator").Warn("acknowledgement message moved, skipping image attach",
			"conversation_id", task.ConversationID, "index", task.MessageIndex)
		return nil
	}
	msg.ImageURL = imageURL
	return tx.SaveConversation(ctx, conv)
}

// userFacingGenerationError maps pipeline failures to messages safe to show
// the user. Raw provider errors stay in the logs.
func userFacingGenerationError(err error) string {
	if hcerrors.IsContentPolicy(err) {
		return "Your request couldn't be processed due to content guidelines. Please try rephrasing it."
	}
	return "Something went wrong while generating your design. Please try again."
}
