package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/tracing"
	"physlab/pkg/utils"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const bearerProtocolPrefix = "bearer."

type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
	AllowedOrigins    []string
	MessagesPerSecond float64 // zero disables the per-connection limiter
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendBuffer:      64,
		MaxMessageBytes: 64 * 1024,
		AllowedOrigins:  []string{"*"},
	}
}

// Deps are the domain operations inbound events are routed to.
type Deps struct {
	Auth      ports.AuthService
	Messages  ports.MessageService
	Students  ports.StudentService
	Materials ports.MaterialRepository
	Notifier  *Notifier
}

// envelope is the inbound frame shape.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type inboundHandler func(ctx context.Context, c *Client, data json.RawMessage) error

// Server authenticates websocket handshakes and routes inbound events.
type Server struct {
	hub      *Hub
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
	handlers map[string]inboundHandler
	metrics  Recorder
	logger   *zap.SugaredLogger
}

func NewServer(hub *Hub, cfg Config, deps Deps, metrics Recorder, logger *zap.SugaredLogger) *Server {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	s := &Server{
		hub:     hub,
		cfg:     cfg,
		deps:    deps,
		metrics: metrics,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	s.handlers = map[string]inboundHandler{
		domain.InboundSendMessage:      s.handleSendMessage,
		domain.InboundBroadcastMessage: s.handleBroadcast,
		domain.InboundProgressUpdate:   s.handleProgress,
		domain.InboundMaterialCreated:  s.materialChangedHandler(domain.InboundMaterialCreated),
		domain.InboundMaterialUpdated:  s.materialChangedHandler(domain.InboundMaterialUpdated),
		domain.InboundMaterialDeleted:  s.handleMaterialDeleted,
	}
	return s
}

// ServeHTTP authenticates, upgrades and then serves the connection until it fails.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, protocol := tokenFrom(r)
	identity, err := s.deps.Auth.Authenticate(r.Context(), token)
	if err != nil {
		s.logger.Infow("websocket handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		status, body := apperrors.Response(err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
		return
	}

	var header http.Header
	if protocol != "" {
		header = http.Header{"Sec-Websocket-Protocol": []string{protocol}}
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := NewClient(utils.GenerateConnectionID(), identity, s.cfg.SendBuffer)
	c.conn = conn
	if s.cfg.MessagesPerSecond > 0 {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
	}

	if _, err := s.hub.Admit(c); err != nil {
		s.logger.Warnw("connection not admitted", "user_id", identity.UserID, "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	defer s.hub.Dismiss(c.id)

	s.hub.Send(c.id, domain.NewEvent(domain.EventConnected, map[string]interface{}{
		"message": "connected",
		"user": map[string]interface{}{
			"id":   identity.UserID,
			"name": identity.Name,
			"role": identity.Role,
		},
	}))
	s.logger.Infow("realtime client connected",
		"conn_id", c.id,
		"user_id", identity.UserID,
		"role", identity.Role,
	)

	go c.writePump(s.cfg, s.logger)

	ctx := context.WithoutCancel(r.Context())
	c.readPump(s.cfg, s.logger, func(data []byte) {
		s.dispatch(ctx, c, data)
	})
	s.logger.Infow("realtime client disconnected", "conn_id", c.id, "user_id", identity.UserID)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// tokenFrom returns the session token and, when it came from a subprotocol,
// the protocol value to echo back.
func tokenFrom(r *http.Request) (token, protocol string) {
	if token = r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), ""
	}
	for _, p := range websocket.Subprotocols(r) {
		if strings.HasPrefix(p, bearerProtocolPrefix) {
			return strings.TrimPrefix(p, bearerProtocolPrefix), p
		}
	}
	return "", ""
}

func (s *Server) dispatch(ctx context.Context, c *Client, data []byte) {
	if !c.allow() {
		s.metrics.RecordOperation("ws.rate_limited", "rejected")
		s.replyError(c, domain.EventError, apperrors.NewRateLimitError())
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		s.replyError(c, domain.EventError, apperrors.NewInvalidInputError("malformed event envelope"))
		return
	}

	handle, ok := s.handlers[env.Event]
	if !ok {
		s.metrics.RecordOperation("ws.unknown", "rejected")
		s.replyError(c, domain.EventError, apperrors.NewInvalidInputError("unknown event: "+env.Event))
		return
	}

	ctx, span := tracing.StartSpan(ctx, "realtime.inbound "+env.Event)
	span.SetAttributes(
		tracing.EventKey.String(env.Event),
		tracing.UserIDKey.Int64(int64(c.identity.UserID)),
		tracing.RoleKey.String(string(c.identity.Role)),
		attribute.String("realtime.conn_id", c.id),
	)
	defer span.End()

	if err := handle(ctx, c, env.Data); err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.RecordOperation("ws."+env.Event, "error")
		s.logger.Infow("inbound event failed",
			"event", env.Event,
			"conn_id", c.id,
			"user_id", c.identity.UserID,
			"error", err,
		)
		return
	}
	s.metrics.RecordOperation("ws."+env.Event, "ok")
}

// replyError sends the error envelope body to the origin connection only.
func (s *Server) replyError(c *Client, event string, err error) {
	_, body := apperrors.Response(err)
	s.hub.Send(c.id, domain.NewEvent(event, body.Error))
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.NewInvalidInputError("event data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewInvalidInputError("malformed event data")
	}
	return nil
}

func (s *Server) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var in struct {
		RecipientID domain.UserID `json:"recipient_id"`
		Content     string        `json:"content"`
		Type        string        `json:"type"`
	}
	if err := decode(data, &in); err != nil {
		s.replyError(c, domain.EventMessageError, err)
		return err
	}

	msg, err := s.deps.Messages.Send(ctx, c.identity, in.RecipientID, in.Content, in.Type)
	if err != nil {
		s.replyError(c, domain.EventMessageError, err)
		return err
	}
	s.hub.Send(c.id, domain.NewEvent(domain.EventMessageSent, map[string]interface{}{
		"success":   true,
		"messageId": msg.ID,
	}))
	return nil
}

func (s *Server) handleBroadcast(ctx context.Context, c *Client, data json.RawMessage) error {
	if err := s.hub.Authorize(domain.InboundBroadcastMessage, c.identity); err != nil {
		s.replyError(c, domain.EventError, err)
		return err
	}
	var in struct {
		Content     string `json:"content"`
		TargetGroup string `json:"target_group"`
		Type        string `json:"type"`
	}
	if err := decode(data, &in); err != nil {
		s.replyError(c, domain.EventBroadcastError, err)
		return err
	}

	res, err := s.deps.Messages.Broadcast(ctx, c.identity, in.TargetGroup, in.Content, in.Type)
	if err != nil {
		s.replyError(c, domain.EventBroadcastError, err)
		return err
	}
	s.hub.Send(c.id, domain.NewEvent(domain.EventBroadcastSent, map[string]interface{}{
		"success":    true,
		"recipients": res.Recipients,
	}))
	return nil
}

func (s *Server) handleProgress(ctx context.Context, c *Client, data json.RawMessage) error {
	err := s.progress(ctx, c, data)
	if err != nil {
		s.replyError(c, domain.EventError, err)
	}
	return err
}

func (s *Server) progress(ctx context.Context, c *Client, data json.RawMessage) error {
	if err := s.hub.Authorize(domain.InboundProgressUpdate, c.identity); err != nil {
		return err
	}
	var in struct {
		MaterialID         domain.MaterialID `json:"material_id"`
		ProgressPercentage int               `json:"progress_percentage"`
		TimeSpent          int               `json:"time_spent"`
	}
	if err := decode(data, &in); err != nil {
		return err
	}
	_, err := s.deps.Students.UpdateProgress(ctx, c.identity, in.MaterialID, in.ProgressPercentage, in.TimeSpent)
	return err
}

// materialChangedHandler rebroadcasts the stored material. The client payload only names it.
func (s *Server) materialChangedHandler(event string) inboundHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		err := s.materialChanged(ctx, c, event, data)
		if err != nil {
			s.replyError(c, domain.EventError, err)
		}
		return err
	}
}

func (s *Server) materialChanged(ctx context.Context, c *Client, event string, data json.RawMessage) error {
	if err := s.hub.Authorize(event, c.identity); err != nil {
		return err
	}
	var in struct {
		Material struct {
			ID domain.MaterialID `json:"id"`
		} `json:"material"`
	}
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.Material.ID == 0 {
		return apperrors.NewValidationError("material.id", "material.id is required")
	}

	m, err := s.deps.Materials.GetByID(ctx, in.Material.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NewNotFoundError("material")
		}
		return apperrors.NewStoreError(err)
	}

	if event == domain.InboundMaterialCreated {
		s.deps.Notifier.material(ctx, nil, m, domain.ActionCreated, c.id)
	} else {
		s.deps.Notifier.material(ctx, m, m, domain.ActionUpdated, c.id)
	}
	return nil
}

func (s *Server) handleMaterialDeleted(ctx context.Context, c *Client, data json.RawMessage) error {
	err := s.materialDeleted(ctx, c, data)
	if err != nil {
		s.replyError(c, domain.EventError, err)
	}
	return err
}

func (s *Server) materialDeleted(ctx context.Context, c *Client, data json.RawMessage) error {
	if err := s.hub.Authorize(domain.InboundMaterialDeleted, c.identity); err != nil {
		return err
	}
	var in struct {
		MaterialID    domain.MaterialID `json:"materialId"`
		MaterialTitle string            `json:"materialTitle"`
	}
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.MaterialID == 0 {
		return apperrors.NewValidationError("materialId", "materialId is required")
	}

	_, err := s.deps.Materials.GetByID(ctx, in.MaterialID)
	switch {
	case err == nil:
		return apperrors.NewConflictError("material still exists")
	case !errors.Is(err, domain.ErrNotFound):
		return apperrors.NewStoreError(err)
	}

	s.deps.Notifier.deleted(ctx, in.MaterialID, in.MaterialTitle, 0, c.id)
	return nil
}
