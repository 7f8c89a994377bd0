package services

import (
	"fmt"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"
)

// Operation names a guarded action. Realtime inbound events use their event name.
type Operation string

const (
	OpMaterialCreate     Operation = "material.create"
	OpMaterialUpdate     Operation = "material.update"
	OpMaterialDelete     Operation = "material.delete"
	OpMaterialPublish    Operation = "material.publish"
	OpMaterialStats      Operation = "material.stats"
	OpMaterialListAuthor Operation = "material.list_author"
	OpTestCreate         Operation = "test.create"
	OpMessageSend        Operation = "message.send"
	OpMessageBroadcast   Operation = "message.broadcast"
	OpMessageDelivery    Operation = "message.delivery"
	OpScheduleCreate     Operation = "schedule.create"
	OpScheduleUpdate     Operation = "schedule.update"
	OpScheduleDelete     Operation = "schedule.delete"
	OpTeacherStudents    Operation = "teacher.students"
	OpTeacherAnalytics   Operation = "teacher.analytics"
	OpAnalyticsRead      Operation = "analytics.read"

	OpStudentProgress   Operation = "student.progress"
	OpStudentTestSubmit Operation = "student.tests.submit"
	OpMessageDirect     Operation = "message.send_direct"

	OpEventMaterialCreated  = Operation(domain.InboundMaterialCreated)
	OpEventMaterialUpdated  = Operation(domain.InboundMaterialUpdated)
	OpEventMaterialDeleted  = Operation(domain.InboundMaterialDeleted)
	OpEventBroadcastMessage = Operation(domain.InboundBroadcastMessage)
	OpEventSendMessage      = Operation(domain.InboundSendMessage)
	OpEventProgressUpdate   = Operation(domain.InboundProgressUpdate)
)

var (
	staff    = []domain.Role{domain.RoleTeacher, domain.RoleAdmin}
	everyone = []domain.Role{domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin}
)

// DefaultRules is the role table consulted by every gate.
func DefaultRules() map[Operation][]domain.Role {
	return map[Operation][]domain.Role{
		OpMaterialCreate:     staff,
		OpMaterialUpdate:     staff,
		OpMaterialDelete:     staff,
		OpMaterialPublish:    staff,
		OpMaterialStats:      staff,
		OpMaterialListAuthor: staff,
		OpTestCreate:         staff,
		OpMessageSend:        staff,
		OpMessageBroadcast:   staff,
		OpMessageDelivery:    staff,
		OpScheduleCreate:     staff,
		OpScheduleUpdate:     staff,
		OpScheduleDelete:     staff,
		OpTeacherStudents:    staff,
		OpTeacherAnalytics:   staff,
		OpAnalyticsRead:      staff,

		OpEventMaterialCreated:  staff,
		OpEventMaterialUpdated:  staff,
		OpEventMaterialDeleted:  staff,
		OpEventBroadcastMessage: staff,

		OpStudentProgress:     everyone,
		OpStudentTestSubmit:   everyone,
		OpMessageDirect:       everyone,
		OpEventSendMessage:    everyone,
		OpEventProgressUpdate: everyone,
	}
}

// AccessPolicy answers whether a role may perform an operation.
// Operations missing from the table are denied.
type AccessPolicy struct {
	rules map[Operation]map[domain.Role]struct{}
}

func NewAccessPolicy(rules map[Operation][]domain.Role) *AccessPolicy {
	p := &AccessPolicy{rules: make(map[Operation]map[domain.Role]struct{}, len(rules))}
	for op, roles := range rules {
		set := make(map[domain.Role]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		p.rules[op] = set
	}
	return p
}

func DefaultAccessPolicy() *AccessPolicy {
	return NewAccessPolicy(DefaultRules())
}

func (p *AccessPolicy) Allows(op Operation, role domain.Role) bool {
	roles, ok := p.rules[op]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// Authorize returns an Unauthorized AppError when the identity's role is not allowed.
func (p *AccessPolicy) Authorize(op Operation, id domain.Identity) error {
	if p.Allows(op, id.Role) {
		return nil
	}
	return apperrors.NewUnauthorizedError(fmt.Sprintf("role %q may not perform %s", id.Role, op)).
		WithContext("operation", string(op))
}
