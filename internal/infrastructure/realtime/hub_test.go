package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

type countingRecorder struct {
	mu         sync.Mutex
	admitted   int
	dismissed  int
	emitted    map[string]int
	dropped    map[string]int
	relayFails int
	operations map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		emitted:    map[string]int{},
		dropped:    map[string]int{},
		operations: map[string]int{},
	}
}

func (r *countingRecorder) ConnectionAdmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admitted++
}

func (r *countingRecorder) ConnectionDismissed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed++
}

func (r *countingRecorder) EventEmitted(event string, recipients int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted[event] += recipients
}

func (r *countingRecorder) EventDropped(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[event]++
}

func (r *countingRecorder) RelayFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relayFails++
}

func (r *countingRecorder) RecordOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation+":"+outcome]++
}

type publishCall struct {
	group  string
	event  string
	except string
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (r *fakeRelay) Publish(_ context.Context, group string, ev domain.Event, except string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, publishCall{group: group, event: ev.Name, except: except})
	return r.err
}

func newTestHub(metrics Recorder) *Hub {
	return NewHub(nil, metrics, zap.NewNop().Sugar())
}

func identity(id domain.UserID, role domain.Role, class string) domain.Identity {
	return domain.Identity{UserID: id, Role: role, Class: class, Name: "User", Surname: "Test"}
}

func admit(t *testing.T, h *Hub, connID string, id domain.Identity) *Client {
	t.Helper()
	c := NewClient(connID, id, 8)
	_, err := h.Admit(c)
	require.NoError(t, err)
	return c
}

// next pops one queued event from the client buffer.
func next(t *testing.T, c *Client) domain.Event {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send buffer closed")
		var ev domain.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event queued")
		return domain.Event{}
	}
}

func TestHub_AdmitComputesGroups(t *testing.T) {
	h := newTestHub(nil)

	groups, err := h.Admit(NewClient("c1", identity(7, domain.RoleStudent, "10A"), 1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"role:student", "user:7", "class:10A"}, groups)
	assert.Equal(t, []string{"class:10A", "role:student", "user:7"}, h.Groups("c1"))

	groups, err = h.Admit(NewClient("c2", identity(8, domain.RoleTeacher, ""), 1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"role:teacher", "user:8"}, groups)
	assert.Equal(t, 2, h.Count())
}

func TestHub_ReadmitReplacesMemberships(t *testing.T) {
	metrics := newCountingRecorder()
	h := newTestHub(metrics)

	first := admit(t, h, "c1", identity(1, domain.RoleStudent, "9B"))
	second := admit(t, h, "c1", identity(1, domain.RoleTeacher, ""))

	assert.Empty(t, h.Members("role:student"))
	assert.Empty(t, h.Members("class:9B"))
	assert.Equal(t, []string{"c1"}, h.Members("role:teacher"))
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, 1, metrics.admitted)

	_, open := <-first.send
	assert.False(t, open, "replaced client buffer must be closed")

	assert.Equal(t, 1, h.Emit(context.Background(), "role:teacher", domain.NewEvent("ping", nil)))
	assert.Equal(t, "ping", next(t, second).Name)
}

func TestHub_MultipleConnectionsPerIdentity(t *testing.T) {
	h := newTestHub(nil)
	id := identity(3, domain.RoleStudent, "")
	a := admit(t, h, "a", id)
	b := admit(t, h, "b", id)

	n := h.Emit(context.Background(), domain.UserGroup(3), domain.NewEvent("hello", nil))
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", next(t, a).Name)
	assert.Equal(t, "hello", next(t, b).Name)
}

func TestHub_DismissIsIdempotent(t *testing.T) {
	metrics := newCountingRecorder()
	h := newTestHub(metrics)
	c := admit(t, h, "c1", identity(1, domain.RoleStudent, "10A"))

	assert.True(t, h.Dismiss("c1"))
	assert.False(t, h.Dismiss("c1"))
	assert.Equal(t, 0, h.Count())
	assert.Empty(t, h.Members("class:10A"))
	assert.Equal(t, 1, metrics.dismissed)

	_, open := <-c.send
	assert.False(t, open)

	_, err := h.Admit(c)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestHub_AdmitDismissAdmitStartsFresh(t *testing.T) {
	h := newTestHub(nil)
	admit(t, h, "c1", identity(1, domain.RoleStudent, "10A"))
	require.True(t, h.Dismiss("c1"))

	fresh := admit(t, h, "c2", identity(1, domain.RoleStudent, "11B"))

	assert.Empty(t, h.Members("class:10A"))
	assert.Empty(t, h.Groups("c1"))
	assert.Equal(t, []string{"class:11B", "role:student", "user:1"}, h.Groups("c2"))
	assert.Equal(t, []string{"c2"}, h.Members("user:1"))

	assert.Equal(t, 0, h.Emit(context.Background(), "class:10A", domain.NewEvent("ping", nil)))
	assert.Equal(t, 1, h.Emit(context.Background(), "class:11B", domain.NewEvent("ping", nil)))
	assert.Equal(t, "ping", next(t, fresh).Name)
}

func TestHub_EmitExceptSkipsOrigin(t *testing.T) {
	h := newTestHub(nil)
	origin := admit(t, h, "t1", identity(1, domain.RoleTeacher, ""))
	other := admit(t, h, "t2", identity(2, domain.RoleTeacher, ""))

	n := h.EmitExcept(context.Background(), "role:teacher", domain.NewEvent("material_updated", nil), "t1")
	assert.Equal(t, 1, n)
	assert.Equal(t, "material_updated", next(t, other).Name)
	assert.Len(t, origin.send, 0)
}

func TestHub_FullBufferDropsForThatClientOnly(t *testing.T) {
	metrics := newCountingRecorder()
	h := newTestHub(metrics)
	slow := NewClient("slow", identity(1, domain.RoleStudent, ""), 1)
	_, err := h.Admit(slow)
	require.NoError(t, err)
	fast := admit(t, h, "fast", identity(2, domain.RoleStudent, ""))

	ctx := context.Background()
	assert.Equal(t, 2, h.Emit(ctx, "role:student", domain.NewEvent("one", nil)))
	assert.Equal(t, 1, h.Emit(ctx, "role:student", domain.NewEvent("two", nil)))

	assert.Equal(t, 1, metrics.dropped["two"])
	assert.Equal(t, "one", next(t, slow).Name)
	assert.Equal(t, "one", next(t, fast).Name)
	assert.Equal(t, "two", next(t, fast).Name)
}

func TestHub_SeqIsMonotonic(t *testing.T) {
	h := newTestHub(nil)
	c := admit(t, h, "c1", identity(1, domain.RoleAdmin, ""))

	ctx := context.Background()
	h.Emit(ctx, "role:admin", domain.NewEvent("a", nil))
	h.Send("c1", domain.NewEvent("b", nil))
	h.Emit(ctx, "user:1", domain.NewEvent("c", nil))

	var last uint64
	for i := 0; i < 3; i++ {
		ev := next(t, c)
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}
}

func TestHub_VersionIsCarried(t *testing.T) {
	h := newTestHub(nil)
	c := admit(t, h, "c1", identity(1, domain.RoleStudent, ""))

	h.Emit(context.Background(), "role:student", domain.NewEvent("material_updated", nil).WithVersion(4))
	assert.Equal(t, 4, next(t, c).Version)
}

func TestHub_RelayReceivesEmitsNotDeliveries(t *testing.T) {
	h := newTestHub(nil)
	relay := &fakeRelay{}
	h.SetRelay(relay)
	admit(t, h, "c1", identity(1, domain.RoleStudent, ""))

	h.EmitExcept(context.Background(), "role:student", domain.NewEvent("emitted", nil), "c9")
	h.Deliver("role:student", domain.NewEvent("relayed", nil), "")

	require.Len(t, relay.calls, 1)
	assert.Equal(t, publishCall{group: "role:student", event: "emitted", except: "c9"}, relay.calls[0])

	h.SetRelay(nil)
	h.Emit(context.Background(), "role:student", domain.NewEvent("local", nil))
	assert.Len(t, relay.calls, 1)
}

func TestHub_RelayFailureIsCounted(t *testing.T) {
	metrics := newCountingRecorder()
	h := newTestHub(metrics)
	h.SetRelay(&fakeRelay{err: errors.New("broker down")})
	c := admit(t, h, "c1", identity(1, domain.RoleStudent, ""))

	assert.Equal(t, 1, h.Emit(context.Background(), "role:student", domain.NewEvent("x", nil)))
	assert.Equal(t, 1, metrics.relayFails)
	assert.Equal(t, "x", next(t, c).Name)
}

func TestHub_SendUnknownConnection(t *testing.T) {
	h := newTestHub(nil)
	assert.False(t, h.Send("missing", domain.NewEvent("x", nil)))
}

func TestHub_Authorize(t *testing.T) {
	h := newTestHub(nil)

	err := h.Authorize(domain.InboundBroadcastMessage, identity(1, domain.RoleStudent, ""))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetAppError(err).Code)

	assert.NoError(t, h.Authorize(domain.InboundBroadcastMessage, identity(2, domain.RoleTeacher, "")))
	assert.NoError(t, h.Authorize(domain.InboundSendMessage, identity(1, domain.RoleStudent, "")))

	err = h.Authorize("drop_tables", identity(3, domain.RoleAdmin, ""))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetAppError(err).Code)
}

func TestHub_CloseRejectsAdmits(t *testing.T) {
	h := newTestHub(nil)
	c := admit(t, h, "c1", identity(1, domain.RoleStudent, ""))

	h.Close()
	assert.Equal(t, 0, h.Count())
	_, open := <-c.send
	assert.False(t, open)

	_, err := h.Admit(NewClient("c2", identity(2, domain.RoleStudent, ""), 1))
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_ConcurrentEmitAndDismiss(t *testing.T) {
	h := newTestHub(nil)
	for i := 0; i < 20; i++ {
		admit(t, h, string(rune('a'+i)), identity(domain.UserID(i+1), domain.RoleStudent, ""))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.Emit(context.Background(), "role:student", domain.NewEvent("tick", nil))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			h.Dismiss(string(rune('a' + i)))
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, h.Count())
	assert.Empty(t, h.Groups("a"))
}

func TestHub_EmitSpanCountsRecipients(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newTestHub(nil)
	admit(t, h, "s1", identity(1, domain.RoleStudent, "9A"))
	admit(t, h, "s2", identity(2, domain.RoleStudent, "9A"))

	h.Emit(context.Background(), "class:9A", domain.NewEvent("ping", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	got := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "2", got["realtime.recipients"])
	assert.Equal(t, "class:9A", got["realtime.group"])
}
