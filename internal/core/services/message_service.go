package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/utils"
	"physlab/pkg/validation"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxMessageLength    = 4000
)

type messageService struct {
	messages ports.MessageRepository
	users    ports.UserRepository
	tx       ports.Transactor
	policy   *AccessPolicy
	notifier ports.Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewMessageService(
	messages ports.MessageRepository,
	users ports.UserRepository,
	tx ports.Transactor,
	policy *AccessPolicy,
	notifier ports.Notifier,
	logger *zap.SugaredLogger,
) ports.MessageService {
	return &messageService{
		messages: messages,
		users:    users,
		tx:       tx,
		policy:   policy,
		notifier: notifierOrNop(notifier),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *messageService) Send(ctx context.Context, id domain.Identity, recipientID domain.UserID, content, msgType string) (*domain.Message, error) {
	if err := s.policy.Authorize(OpMessageDirect, id); err != nil {
		return nil, err
	}
	content = utils.SanitizeString(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if recipientID == 0 {
		return nil, apperrors.NewValidationError("recipient_id", "recipient_id is required")
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("recipient")
		}
		return nil, apperrors.NewStoreError(err)
	}

	rid := recipientID
	msg := &domain.Message{
		SenderID:      id.UserID,
		SenderName:    id.Name,
		SenderSurname: id.Surname,
		RecipientID:   &rid,
		Content:       content,
		Type:          messageType(msgType),
		Status:        domain.MessageStatusSent,
		SentAt:        s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, classify(err, "message")
	}

	s.logger.Debugw("message sent", "message_id", msg.ID, "sender_id", id.UserID, "recipient_id", recipientID)
	s.notifier.MessageSent(ctx, msg, id)
	return msg, nil
}

// Broadcast stores one row per student in the target group inside a single transaction.
func (s *messageService) Broadcast(ctx context.Context, id domain.Identity, targetGroup, content, msgType string) (*domain.BroadcastResult, error) {
	if err := s.policy.Authorize(OpMessageBroadcast, id); err != nil {
		return nil, err
	}
	content = utils.SanitizeString(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}
	targetGroup = strings.TrimSpace(targetGroup)
	if targetGroup == "" {
		targetGroup = domain.BroadcastAll
	}

	ctx = context.WithoutCancel(ctx)
	result := domain.BroadcastResult{
		TargetGroup: targetGroup,
		Content:     content,
		Type:        messageType(msgType),
		SentAt:      s.now(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		students, err := s.users.StudentsInGroup(ctx, targetGroup)
		if err != nil {
			return err
		}
		rows := make([]*domain.Message, 0, len(students))
		for _, st := range students {
			rid := st.ID
			rows = append(rows, &domain.Message{
				SenderID:    id.UserID,
				RecipientID: &rid,
				Content:     content,
				Type:        result.Type,
				Status:      domain.MessageStatusSent,
				IsBroadcast: true,
				TargetGroup: targetGroup,
				SentAt:      result.SentAt,
			})
		}
		result.Recipients = len(rows)
		return s.messages.CreateBatch(ctx, rows)
	})
	if err != nil {
		return nil, classify(err, "message")
	}

	s.logger.Infow("broadcast sent",
		"sender_id", id.UserID,
		"target_group", targetGroup,
		"recipients", result.Recipients,
	)
	if result.Recipients > 0 {
		s.notifier.BroadcastSent(ctx, id, result)
	}
	return &result, nil
}

func (s *messageService) History(ctx context.Context, id domain.Identity, page, limit int) ([]*domain.Message, int64, error) {
	p := utils.NewPage(page, limit, defaultHistoryLimit)

	var (
		list  []*domain.Message
		total int64
		err   error
	)
	if id.Role.IsPrivileged() {
		list, total, err = s.messages.ListSent(ctx, id.UserID, p.Offset(), p.Limit)
	} else {
		list, total, err = s.messages.ListReceived(ctx, id.UserID, p.Offset(), p.Limit)
	}
	if err != nil {
		return nil, 0, classify(err, "message")
	}
	return list, total, nil
}

func (s *messageService) MarkRead(ctx context.Context, id domain.Identity, messageID domain.MessageID) (*domain.Message, error) {
	ctx = context.WithoutCancel(ctx)
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, classify(err, "message")
	}
	if msg.RecipientID == nil || *msg.RecipientID != id.UserID {
		return nil, apperrors.NewNotFoundError("message")
	}
	if msg.ReadAt != nil {
		return msg, nil
	}

	now := s.now()
	if err := s.messages.MarkRead(ctx, messageID, now); err != nil {
		return nil, classify(err, "message")
	}
	msg.ReadAt = &now
	msg.Status = domain.MessageStatusRead
	return msg, nil
}

func (s *messageService) DeliveryStats(ctx context.Context, id domain.Identity, messageID domain.MessageID) (*domain.DeliveryStats, error) {
	if err := s.policy.Authorize(OpMessageDelivery, id); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, classify(err, "message")
	}
	if msg.SenderID != id.UserID && id.Role != domain.RoleAdmin {
		return nil, apperrors.NewNotFoundError("message")
	}
	stats, err := s.messages.DeliveryStats(ctx, msg)
	if err != nil {
		return nil, classify(err, "message")
	}
	return stats, nil
}

func validateContent(content string) error {
	if err := validation.ValidateNonEmptyString(content, "content"); err != nil {
		return err
	}
	return validation.ValidateStringLength(content, 1, maxMessageLength, "content")
}

func messageType(t string) string {
	if t = strings.TrimSpace(t); t == "" {
		return domain.MessageTypeText
	}
	return t
}
