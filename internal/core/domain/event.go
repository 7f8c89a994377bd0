package domain

import (
	"fmt"
	"time"
)

// Server-to-client event names.
const (
	EventConnected             = "connected"
	EventNewMessage            = "new_message"
	EventMessageSent           = "message_sent"
	EventMessageError          = "message_error"
	EventBroadcastNotification = "broadcast_notification"
	EventBroadcastSent         = "broadcast_sent"
	EventBroadcastError        = "broadcast_error"
	EventStudentProgress       = "student_progress_update"
	EventNewMaterial           = "new_material"
	EventMaterialUpdated       = "material_updated"
	EventMaterialDeleted       = "material_deleted"
	EventSystemNotification    = "system_notification"
	EventError                 = "error"
)

// Client-to-server event names.
const (
	InboundSendMessage      = "send_message"
	InboundBroadcastMessage = "broadcast_message"
	InboundProgressUpdate   = "progress_update"
	InboundMaterialCreated  = "material_created"
	InboundMaterialUpdated  = "material_updated"
	InboundMaterialDeleted  = "material_deleted"
)

// Material actions carried on material_updated events sent to staff.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event is a realtime notification describing a committed change. Version carries
// the entity version for material events. Seq is stamped by the hub on emit.
type Event struct {
	Name      string      `json:"event"`
	Data      interface{} `json:"data"`
	Version   int         `json:"version,omitempty"`
	Seq       uint64      `json:"seq,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEvent(name string, data interface{}) Event {
	return Event{Name: name, Data: data, Timestamp: time.Now().UTC()}
}

// WithVersion returns a copy of e carrying an entity version.
func (e Event) WithVersion(v int) Event {
	e.Version = v
	return e
}

func RoleGroup(r Role) string { return "role:" + string(r) }

func ClassGroup(class string) string { return "class:" + class }

func UserGroup(id UserID) string { return fmt.Sprintf("user:%d", id) }

// StaffGroups are the groups that receive teacher-facing notifications.
func StaffGroups() []string {
	return []string{RoleGroup(RoleTeacher), RoleGroup(RoleAdmin)}
}

// IdentityGroups returns every realtime group the identity belongs to.
func IdentityGroups(i Identity) []string {
	groups := []string{RoleGroup(i.Role), UserGroup(i.UserID)}
	if i.Class != "" {
		groups = append(groups, ClassGroup(i.Class))
	}
	return groups
}
