package domain

import "time"

type MessageID uint

const (
	MessageTypeText = "text"

	MessageStatusSent = "sent"
	MessageStatusRead = "read"

	// BroadcastAll targets every student.
	BroadcastAll = "all"
)

type Message struct {
	ID            MessageID  `json:"id"`
	SenderID      UserID     `json:"sender_id"`
	SenderName    string     `json:"sender_name,omitempty"`
	SenderSurname string     `json:"sender_surname,omitempty"`
	RecipientID   *UserID    `json:"recipient_id,omitempty"`
	Content       string     `json:"content"`
	Type          string     `json:"message_type"`
	Status        string     `json:"status"`
	IsBroadcast   bool       `json:"is_broadcast"`
	TargetGroup   string     `json:"target_group,omitempty"`
	SentAt        time.Time  `json:"sent_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// AddressedTo reports whether id is the direct recipient or falls in the broadcast audience.
func (m *Message) AddressedTo(id Identity) bool {
	if m.RecipientID != nil {
		return *m.RecipientID == id.UserID
	}
	if !m.IsBroadcast || id.Role != RoleStudent {
		return false
	}
	return m.TargetGroup == BroadcastAll || m.TargetGroup == "" || m.TargetGroup == id.Class
}

type DeliveryStats struct {
	TotalSent   int64 `json:"total_sent"`
	TotalRead   int64 `json:"total_read"`
	TotalUnread int64 `json:"total_unread"`
}

// BroadcastResult describes a committed broadcast.
type BroadcastResult struct {
	TargetGroup string    `json:"target_group"`
	Content     string    `json:"content"`
	Type        string    `json:"message_type"`
	SentAt      time.Time `json:"sent_at"`
	Recipients  int       `json:"recipients"`
}
