package services

import (
	"testing"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessPolicy_DefaultRules(t *testing.T) {
	p := DefaultAccessPolicy()

	tests := []struct {
		op      Operation
		role    domain.Role
		allowed bool
	}{
		{OpMaterialCreate, domain.RoleStudent, false},
		{OpMaterialCreate, domain.RoleTeacher, true},
		{OpMaterialCreate, domain.RoleAdmin, true},
		{OpMessageBroadcast, domain.RoleStudent, false},
		{OpAnalyticsRead, domain.RoleTeacher, true},
		{OpStudentProgress, domain.RoleStudent, true},
		{OpMessageDirect, domain.RoleStudent, true},
		{OpEventMaterialDeleted, domain.RoleStudent, false},
		{OpEventSendMessage, domain.RoleStudent, true},
		{Operation("unknown"), domain.RoleAdmin, false},
		{OpMaterialCreate, domain.Role("guest"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, p.Allows(tt.op, tt.role), "%s as %s", tt.op, tt.role)
	}
}

func TestAccessPolicy_AuthorizeError(t *testing.T) {
	p := DefaultAccessPolicy()

	err := p.Authorize(OpScheduleCreate, domain.Identity{Role: domain.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetAppError(err).Code)
	assert.Equal(t, string(OpScheduleCreate), apperrors.GetAppError(err).Context["operation"])

	assert.NoError(t, p.Authorize(OpScheduleCreate, domain.Identity{Role: domain.RoleTeacher}))
}

func TestAccessPolicy_CustomTable(t *testing.T) {
	p := NewAccessPolicy(map[Operation][]domain.Role{
		OpMaterialCreate: {domain.RoleAdmin},
	})
	assert.False(t, p.Allows(OpMaterialCreate, domain.RoleTeacher))
	assert.True(t, p.Allows(OpMaterialCreate, domain.RoleAdmin))
	assert.False(t, p.Allows(OpStudentProgress, domain.RoleStudent))
}
