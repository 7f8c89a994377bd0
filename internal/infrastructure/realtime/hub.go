package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/services"
	"physlab/pkg/tracing"

	"go.uber.org/zap"
)

var (
	// ErrHubClosed is returned by Admit after Close.
	ErrHubClosed = errors.New("realtime hub is closed")
	// ErrClientClosed is returned when admitting a client that was already dismissed.
	ErrClientClosed = errors.New("realtime client is closed")
)

// Relay forwards locally emitted events to other instances.
type Relay interface {
	Publish(ctx context.Context, group string, ev domain.Event, except string) error
}

// Recorder receives hub metrics.
type Recorder interface {
	ConnectionAdmitted()
	ConnectionDismissed()
	EventEmitted(event string, recipients int)
	EventDropped(event string)
	RelayFailed()
	RecordOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionAdmitted() {}
func (nopRecorder) ConnectionDismissed() {}
func (nopRecorder) EventEmitted(string, int) {}
func (nopRecorder) EventDropped(string) {}
func (nopRecorder) RelayFailed() {}
func (nopRecorder) RecordOperation(string, string) {}

// Hub owns the registry of live connections and their group memberships.
// Delivery is best effort: a full client buffer drops the event for that client.
type Hub struct {
	policy  *services.AccessPolicy
	metrics Recorder
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	closed  bool

	relay atomic.Value // relayHolder
	seq   atomic.Uint64
	now   func() time.Time
}

type relayHolder struct{ Relay }

func NewHub(policy *services.AccessPolicy, metrics Recorder, logger *zap.SugaredLogger) *Hub {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if policy == nil {
		policy = services.DefaultAccessPolicy()
	}
	return &Hub{
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRelay attaches the cross-instance relay. Passing nil detaches it.
func (h *Hub) SetRelay(r Relay) {
	h.relay.Store(relayHolder{r})
}

func (h *Hub) currentRelay() Relay {
	v, _ := h.relay.Load().(relayHolder)
	return v.Relay
}

// Admit registers c under the groups derived from its identity. Admitting a
// connection id again replaces the earlier memberships.
func (h *Hub) Admit(c *Client) ([]string, error) {
	groups := domain.IdentityGroups(c.identity)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if c.closed {
		h.mu.Unlock()
		return nil, ErrClientClosed
	}
	prev, readmit := h.clients[c.id]
	if readmit {
		h.removeLocked(prev)
		if prev != c {
			prev.closeSend()
		}
	}
	c.groups = groups
	h.clients[c.id] = c
	for _, g := range groups {
		members, ok := h.groups[g]
		if !ok {
			members = make(map[string]*Client)
			h.groups[g] = members
		}
		members[c.id] = c
	}
	h.mu.Unlock()

	if !readmit {
		h.metrics.ConnectionAdmitted()
	}
	h.logger.Debugw("connection admitted",
		"conn_id", c.id,
		"user_id", c.identity.UserID,
		"role", c.identity.Role,
		"groups", groups,
	)
	return groups, nil
}

// Dismiss removes the connection from every group and closes its send buffer.
// It reports false when the connection was not registered.
func (h *Hub) Dismiss(connID string) bool {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		h.removeLocked(c)
		c.closeSend()
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	h.metrics.ConnectionDismissed()
	h.logger.Debugw("connection dismissed", "conn_id", connID, "user_id", c.identity.UserID)
	return true
}

func (h *Hub) removeLocked(c *Client) {
	for _, g := range c.groups {
		members := h.groups[g]
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.groups, g)
		}
	}
	delete(h.clients, c.id)
}

// Emit delivers ev to every local member of group and forwards it to the relay.
// It returns the number of local connections the event was queued for.
func (h *Hub) Emit(ctx context.Context, group string, ev domain.Event) int {
	return h.EmitExcept(ctx, group, ev, "")
}

// EmitExcept is Emit that skips the connection exceptConnID.
func (h *Hub) EmitExcept(ctx context.Context, group string, ev domain.Event, exceptConnID string) int {
	ctx, span := tracing.TraceRealtimeEvent(ctx, ev.Name, group)
	defer span.End()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	n := h.Deliver(group, ev, exceptConnID)
	span.SetAttributes(tracing.RecipientsKey.Int(n))

	if relay := h.currentRelay(); relay != nil {
		if err := relay.Publish(ctx, group, ev, exceptConnID); err != nil {
			h.metrics.RelayFailed()
			tracing.RecordError(ctx, err)
			h.logger.Warnw("failed to relay event", "event", ev.Name, "group", group, "error", err)
		}
	}
	return n
}

// Deliver queues ev for local members of group only. Relayed events enter here.
func (h *Hub) Deliver(group string, ev domain.Event, exceptConnID string) int {
	ev = h.stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Errorw("failed to encode event", "event", ev.Name, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for id, c := range h.groups[group] {
		if id == exceptConnID {
			continue
		}
		if c.enqueue(payload) {
			n++
			continue
		}
		h.metrics.EventDropped(ev.Name)
		h.logger.Warnw("dropped event for slow connection", "event", ev.Name, "conn_id", id)
	}
	h.metrics.EventEmitted(ev.Name, n)
	return n
}

// Send queues ev for one connection. It reports whether the event was queued.
func (h *Hub) Send(connID string, ev domain.Event) bool {
	ev = h.stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Errorw("failed to encode event", "event", ev.Name, "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	if !c.enqueue(payload) {
		h.metrics.EventDropped(ev.Name)
		return false
	}
	return true
}

func (h *Hub) stamp(ev domain.Event) domain.Event {
	ev.Seq = h.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	return ev
}

// Authorize checks whether the identity may emit the named inbound event.
func (h *Hub) Authorize(eventName string, id domain.Identity) error {
	return h.policy.Authorize(services.Operation(eventName), id)
}

// Groups returns the sorted memberships of a connection.
func (h *Hub) Groups(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return nil
	}
	out := append([]string(nil), c.groups...)
	sort.Strings(out)
	return out
}

// Members returns the sorted connection ids in a group.
func (h *Hub) Members(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close dismisses every connection and rejects further admits.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.groups = make(map[string]map[string]*Client)
	for _, c := range clients {
		c.closeSend()
	}
	h.mu.Unlock()

	for range clients {
		h.metrics.ConnectionDismissed()
	}
	h.logger.Infow("realtime hub closed", "connections", len(clients))
}
