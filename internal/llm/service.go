package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/RichardoC/chatpad/internal/db"
	"github.com/RichardoC/chatpad/internal/models"
	"go.uber.org/zap"
)

var (
	ErrEmptyContent        = errors.New("content must not be empty")
	ErrNotAssistantMessage = errors.New("only assistant messages can be regenerated")
	ErrNotUserMessage      = errors.New("only user messages can be edited")
	ErrNoUserMessage       = errors.New("no user message precedes this reply")
)

// Service runs the chat flows that combine storage with a model call.
type Service struct {
	llm          Completer
	db           *db.Database
	defaultModel string
	logger       *zap.Logger
}

func NewService(completer Completer, database *db.Database, defaultModel string, logger *zap.Logger) *Service {
	return &Service{
		llm:          completer,
		db:           database,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

type SendRequest struct {
	Message string
	Model   string
	// ConversationID selects the conversation; nil means the most recently
	// updated one (created if there are none).
	ConversationID *int64
}

type SendResult struct {
	User      models.Message
	Assistant models.Message
}

type EditResult struct {
	User models.Message
	// Assistant is nil when no assistant reply follows the edited message.
	Assistant *models.Message
}

// Send stores the user message, asks the model with the conversation's
// current context window, and stores the reply.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return SendResult{}, ErrEmptyContent
	}
	model := s.modelOr(req.Model)

	convID, err := s.resolveConversation(ctx, req.ConversationID)
	if err != nil {
		return SendResult{}, err
	}

	userMsg, err := s.db.AppendMessage(ctx, convID, models.RoleUser, req.Message, model)
	if err != nil {
		return SendResult{}, err
	}

	// Once the user message is stored a reply must follow it, even if the
	// caller goes away during the completion.
	store := context.WithoutCancel(ctx)

	history, err := s.db.ContextMessages(store, convID)
	if err != nil {
		return SendResult{}, err
	}

	reply := s.complete(ctx, convID, toChat(history), model)

	assistantMsg, err := s.db.AppendMessage(store, convID, models.RoleAssistant, reply, model)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{User: userMsg, Assistant: assistantMsg}, nil
}

// Regenerate recomputes an assistant reply in place from the history up to
// and including the user message that precedes it.
func (s *Service) Regenerate(ctx context.Context, messageID int64) (models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Role != models.RoleAssistant {
		return models.Message{}, ErrNotAssistantMessage
	}
	msg.Model = s.modelOr(msg.Model)

	userID, found, err := s.db.LastUserMessageAtOrBefore(ctx, msg.ConvID, msg.ID)
	if err != nil {
		return models.Message{}, err
	}
	if !found {
		return models.Message{}, ErrNoUserMessage
	}

	if err := s.replay(ctx, &msg, userID); err != nil {
		return models.Message{}, err
	}
	if err := s.db.TouchConversation(context.WithoutCancel(ctx), msg.ConvID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Edit overwrites a user message and, when an assistant reply follows it,
// regenerates that reply from the edited history.
func (s *Service) Edit(ctx context.Context, messageID int64, content string) (EditResult, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return EditResult{}, err
	}
	if msg.Role != models.RoleUser {
		return EditResult{}, ErrNotUserMessage
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return EditResult{}, ErrEmptyContent
	}

	ts, err := s.db.UpdateMessageContent(ctx, msg.ID, content)
	if err != nil {
		return EditResult{}, err
	}
	msg.Content, msg.Timestamp = content, ts
	result := EditResult{User: msg}

	// The edited message is stored; finish the cascade regardless of the caller.
	store := context.WithoutCancel(ctx)

	assistantID, found, err := s.db.NextAssistantMessageAfter(store, msg.ConvID, msg.ID)
	if err != nil {
		return EditResult{}, err
	}
	if found {
		assistant := models.Message{
			ID:     assistantID,
			ConvID: msg.ConvID,
			Role:   models.RoleAssistant,
			Model:  s.modelOr(msg.Model),
		}
		if err := s.replay(ctx, &assistant, msg.ID); err != nil {
			return EditResult{}, err
		}
		result.Assistant = &assistant
	}

	if err := s.db.TouchConversation(store, msg.ConvID); err != nil {
		return EditResult{}, err
	}
	return result, nil
}

// replay asks the model with the history up to and including userID and
// overwrites target with the reply. Only the completion observes ctx
// cancellation; a cancelled call still overwrites target with the fallback.
func (s *Service) replay(ctx context.Context, target *models.Message, userID int64) error {
	store := context.WithoutCancel(ctx)
	history, err := s.db.MessagesUntil(store, target.ConvID, userID)
	if err != nil {
		return err
	}

	reply := s.complete(ctx, target.ConvID, history, target.Model)

	ts, err := s.db.UpdateMessageContent(store, target.ID, reply)
	if err != nil {
		return err
	}
	target.Content, target.Timestamp = reply, ts
	return nil
}

// complete always yields text to store: the model's reply, or the failure
// stand-in when the call did not succeed.
func (s *Service) complete(ctx context.Context, convID int64, history []models.ChatMessage, model string) string {
	res := s.llm.Complete(ctx, history, model)
	if !res.OK() {
		s.logger.Warn("completion failed, storing fallback reply",
			zap.Int64("conversation_id", convID),
			zap.String("model", model),
			zap.Int("history_len", len(history)),
			zap.Error(res.Err))
	} else {
		s.logger.Debug("completion succeeded",
			zap.Int64("conversation_id", convID),
			zap.String("model", model),
			zap.Int("history_len", len(history)),
			zap.Int("reply_len", len(res.Content)))
	}
	return res.Text()
}

func (s *Service) resolveConversation(ctx context.Context, id *int64) (int64, error) {
	if id != nil {
		conv, err := s.db.GetConversation(ctx, *id)
		if err != nil {
			return 0, err
		}
		return conv.ID, nil
	}

	conv, found, err := s.db.LatestConversation(ctx)
	if err != nil {
		return 0, err
	}
	if found {
		return conv.ID, nil
	}
	conv, err = s.db.CreateConversation(ctx, "")
	if err != nil {
		return 0, err
	}
	return conv.ID, nil
}

func (s *Service) modelOr(model string) string {
	if model = strings.TrimSpace(model); model != "" {
		return model
	}
	return s.defaultModel
}

func toChat(messages []models.Message) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
