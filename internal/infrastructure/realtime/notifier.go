package realtime

import (
	"context"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"

	"go.uber.org/zap"
)

// Notifier turns committed mutations into realtime events.
type Notifier struct {
	hub    ports.Broadcaster
	logger *zap.SugaredLogger
}

var _ ports.Notifier = (*Notifier)(nil)

func NewNotifier(hub ports.Broadcaster, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{hub: hub, logger: logger}
}

func (n *Notifier) MaterialCreated(ctx context.Context, m *domain.Material) {
	n.material(ctx, nil, m, domain.ActionCreated, "")
}

func (n *Notifier) MaterialUpdated(ctx context.Context, before, after *domain.Material) {
	n.material(ctx, before, after, domain.ActionUpdated, "")
}

func (n *Notifier) MaterialDeleted(ctx context.Context, m *domain.Material) {
	n.deleted(ctx, m.ID, m.Title, m.Version, "")
}

// material routes a material change. Drafts only reach their author and
// admins; a material leaving the published state looks deleted to everyone
// else, students included.
func (n *Notifier) material(ctx context.Context, before, after *domain.Material, action, except string) {
	wasPublished := before != nil && before.IsPublished()
	staff := domain.NewEvent(domain.EventMaterialUpdated, map[string]interface{}{
		"material": after,
		"action":   action,
	}).WithVersion(after.Version)

	if after.IsPublished() {
		for _, g := range domain.StaffGroups() {
			n.hub.EmitExcept(ctx, g, staff, except)
		}
	} else {
		if wasPublished {
			withdrawn := domain.NewEvent(domain.EventMaterialUpdated, map[string]interface{}{
				"material": map[string]interface{}{"id": after.ID, "title": after.Title},
				"action":   domain.ActionDeleted,
			}).WithVersion(after.Version)
			n.hub.EmitExcept(ctx, domain.RoleGroup(domain.RoleTeacher), withdrawn, except)
		}
		n.hub.EmitExcept(ctx, domain.UserGroup(after.AuthorID), staff, except)
		n.hub.EmitExcept(ctx, domain.RoleGroup(domain.RoleAdmin), staff, except)
	}

	var student domain.Event
	switch {
	case after.IsPublished() && !wasPublished:
		student = domain.NewEvent(domain.EventNewMaterial, map[string]interface{}{
			"material":     after,
			"teacher_name": after.AuthorName,
			"timestamp":    after.UpdatedAt,
		})
	case after.IsPublished():
		student = domain.NewEvent(domain.EventMaterialUpdated, map[string]interface{}{
			"material": after,
		})
	case wasPublished:
		student = domain.NewEvent(domain.EventMaterialDeleted, map[string]interface{}{
			"materialId":    after.ID,
			"materialTitle": after.Title,
		})
	default:
		return
	}
	n.hub.EmitExcept(ctx, domain.RoleGroup(domain.RoleStudent), student.WithVersion(after.Version), except)
}

func (n *Notifier) deleted(ctx context.Context, id domain.MaterialID, title string, version int, except string) {
	staff := domain.NewEvent(domain.EventMaterialUpdated, map[string]interface{}{
		"material": map[string]interface{}{"id": id, "title": title},
		"action":   domain.ActionDeleted,
	}).WithVersion(version)
	for _, g := range domain.StaffGroups() {
		n.hub.EmitExcept(ctx, g, staff, except)
	}

	student := domain.NewEvent(domain.EventMaterialDeleted, map[string]interface{}{
		"materialId":    id,
		"materialTitle": title,
	}).WithVersion(version)
	n.hub.EmitExcept(ctx, domain.RoleGroup(domain.RoleStudent), student, except)
}

func (n *Notifier) MessageSent(ctx context.Context, msg *domain.Message, sender domain.Identity) {
	if msg.RecipientID == nil {
		return
	}
	n.hub.Emit(ctx, domain.UserGroup(*msg.RecipientID), domain.NewEvent(domain.EventNewMessage, map[string]interface{}{
		"id":             msg.ID,
		"sender_id":      msg.SenderID,
		"sender_name":    sender.Name,
		"sender_surname": sender.Surname,
		"content":        msg.Content,
		"type":           msg.Type,
		"sent_at":        msg.SentAt,
	}))
}

func (n *Notifier) BroadcastSent(ctx context.Context, sender domain.Identity, b domain.BroadcastResult) {
	group := domain.RoleGroup(domain.RoleStudent)
	if b.TargetGroup != domain.BroadcastAll {
		group = domain.ClassGroup(b.TargetGroup)
	}
	n.hub.Emit(ctx, group, domain.NewEvent(domain.EventBroadcastNotification, map[string]interface{}{
		"sender_name":    sender.Name,
		"sender_surname": sender.Surname,
		"content":        b.Content,
		"type":           b.Type,
		"sent_at":        b.SentAt,
	}))
}

func (n *Notifier) ProgressUpdated(ctx context.Context, student domain.Identity, p *domain.Progress) {
	ev := domain.NewEvent(domain.EventStudentProgress, map[string]interface{}{
		"student_id":          student.UserID,
		"student_name":        fullName(student),
		"material_id":         p.MaterialID,
		"progress_percentage": p.ProgressPercentage,
		"timestamp":           p.LastAccessed,
	})
	for _, g := range domain.StaffGroups() {
		n.hub.Emit(ctx, g, ev)
	}
}

func (n *Notifier) SystemNotification(ctx context.Context, role domain.Role, payload interface{}) {
	n.hub.Emit(ctx, domain.RoleGroup(role), domain.NewEvent(domain.EventSystemNotification, payload))
}

func fullName(id domain.Identity) string {
	u := domain.User{Name: id.Name, Surname: id.Surname}
	return u.FullName()
}
