package services

import (
	"context"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
)

// NopNotifier discards every notification.
type NopNotifier struct{}

var _ ports.Notifier = NopNotifier{}

func (NopNotifier) MaterialCreated(context.Context, *domain.Material) {}
func (NopNotifier) MaterialUpdated(context.Context, *domain.Material, *domain.Material) {}
func (NopNotifier) MaterialDeleted(context.Context, *domain.Material) {}
func (NopNotifier) MessageSent(context.Context, *domain.Message, domain.Identity) {}
func (NopNotifier) BroadcastSent(context.Context, domain.Identity, domain.BroadcastResult) {}
func (NopNotifier) ProgressUpdated(context.Context, domain.Identity, *domain.Progress) {}
func (NopNotifier) SystemNotification(context.Context, domain.Role, interface{}) {}

func notifierOrNop(n ports.Notifier) ports.Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}
