package sqlite

import (
	"context"
	"fmt"
	"time"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository persists direct and broadcast messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	m := newMessageModel(msg)
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", translate(err))
	}
	msg.ID = domain.MessageID(m.ID)
	return nil
}

func (r *MessageRepository) CreateBatch(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]*messageModel, len(msgs))
	for i, msg := range msgs {
		rows[i] = newMessageModel(msg)
	}
	if err := conn(ctx, r.db).Omit(clause.Associations).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create messages: %w", translate(err))
	}
	for i := range rows {
		msgs[i].ID = domain.MessageID(rows[i].ID)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var m messageModel
	if err := conn(ctx, r.db).Preload("Sender").First(&m, uint(id)).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domain.MessageID, at time.Time) error {
	err := conn(ctx, r.db).Model(&messageModel{}).
		Where("id = ? AND read_at IS NULL", uint(id)).
		Updates(map[string]interface{}{"read_at": at, "status": domain.MessageStatusRead}).Error
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListSent(ctx context.Context, senderID domain.UserID, offset, limit int) ([]*domain.Message, int64, error) {
	return r.list(ctx, conn(ctx, r.db).Model(&messageModel{}).Where("sender_id = ?", uint(senderID)), offset, limit)
}

func (r *MessageRepository) ListReceived(ctx context.Context, recipientID domain.UserID, offset, limit int) ([]*domain.Message, int64, error) {
	return r.list(ctx, conn(ctx, r.db).Model(&messageModel{}).Where("recipient_id = ?", uint(recipientID)), offset, limit)
}

func (r *MessageRepository) list(_ context.Context, query *gorm.DB, offset, limit int) ([]*domain.Message, int64, error) {
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	var rows []messageModel
	err := applyLimit(query.Preload("Sender").Order("sent_at DESC, id DESC"), offset, limit).Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]*domain.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

// DeliveryStats counts a direct message on its own, and a broadcast across
// every row sharing its sender, sent_at and target group.
func (r *MessageRepository) DeliveryStats(ctx context.Context, msg *domain.Message) (*domain.DeliveryStats, error) {
	query := conn(ctx, r.db).Model(&messageModel{})
	if msg.IsBroadcast {
		query = query.Where("sender_id = ? AND sent_at = ? AND target_group = ? AND is_broadcast = ?",
			uint(msg.SenderID), msg.SentAt, msg.TargetGroup, true)
	} else {
		query = query.Where("id = ?", uint(msg.ID))
	}

	var stats domain.DeliveryStats
	err := query.Select("COUNT(*) AS total_sent, COUNT(read_at) AS total_read").Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	stats.TotalUnread = stats.TotalSent - stats.TotalRead
	return &stats, nil
}
