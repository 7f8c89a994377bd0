package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"physlab/internal/core/domain"
	"physlab/pkg/circuitbreaker"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "physlab:events"

// Envelope is the wire form of a relayed realtime event.
type Envelope struct {
	InstanceID string       `json:"instance_id"`
	Group      string       `json:"group"`
	Except     string       `json:"except,omitempty"`
	Event      domain.Event `json:"event"`
}

// Deliverer hands relayed events to local connections only.
type Deliverer interface {
	Deliver(group string, ev domain.Event, except string) int
}

type Options struct {
	Channel        string
	InstanceID     string
	PublishTimeout time.Duration
	Breaker        circuitbreaker.Config
	// MaxRetryInterval caps the resubscribe backoff.
	MaxRetryInterval time.Duration
}

// EventBus relays realtime events between server instances over Redis pub/sub.
type EventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	timeout    time.Duration
	maxRetry   time.Duration
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

func NewEventBus(client *redis.Client, opts Options, logger *zap.SugaredLogger) *EventBus {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.MaxRetryInterval <= 0 {
		opts.MaxRetryInterval = 30 * time.Second
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = circuitbreaker.DefaultConfig()
	}

	eb := &EventBus{
		client:     client,
		channel:    opts.Channel,
		instanceID: opts.InstanceID,
		timeout:    opts.PublishTimeout,
		maxRetry:   opts.MaxRetryInterval,
		breaker:    circuitbreaker.New(opts.Breaker),
		logger:     logger,
		subscribed: make(chan struct{}),
	}
	eb.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("event bus breaker changed state", "from", from.String(), "to", to.String())
	})
	return eb
}

func (eb *EventBus) InstanceID() string { return eb.instanceID }

// Subscribed is closed once the first subscription is confirmed by the broker.
func (eb *EventBus) Subscribed() <-chan struct{} { return eb.subscribed }

// Publish sends ev to the other instances. It fails fast while the breaker is open.
func (eb *EventBus) Publish(ctx context.Context, group string, ev domain.Event, except string) error {
	data, err := json.Marshal(Envelope{
		InstanceID: eb.instanceID,
		Group:      group,
		Except:     except,
		Event:      ev,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return eb.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, eb.timeout)
		defer cancel()
		if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	})
}

// Run delivers events published by other instances to target until ctx is done.
// A lost subscription is re-established with exponential backoff.
func (eb *EventBus) Run(ctx context.Context, target Deliverer) error {
	exp := backoff.NewExponentialBackOff()
	exp.MaxInterval = eb.maxRetry
	exp.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return eb.subscribe(ctx, target, exp)
	}, backoff.WithContext(exp, ctx), func(err error, wait time.Duration) {
		eb.logger.Warnw("event bus subscription lost, retrying", "error", err, "retry_in", wait)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (eb *EventBus) subscribe(ctx context.Context, target Deliverer, exp *backoff.ExponentialBackOff) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	exp.Reset()
	eb.subscribedOnce.Do(func() { close(eb.subscribed) })
	eb.logger.Infow("event bus subscribed", "channel", eb.channel, "instance_id", eb.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			eb.handle(msg.Payload, target)
		}
	}
}

func (eb *EventBus) handle(payload string, target Deliverer) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		eb.logger.Warnw("failed to unmarshal relayed event", "error", err)
		return
	}
	// Skip events from this instance
	if env.InstanceID == eb.instanceID {
		return
	}
	if env.Group == "" || env.Event.Name == "" {
		eb.logger.Warnw("dropping incomplete relayed event", "instance_id", env.InstanceID)
		return
	}

	n := target.Deliver(env.Group, env.Event, env.Except)
	eb.logger.Debugw("delivered relayed event",
		"event", env.Event.Name,
		"group", env.Group,
		"from", env.InstanceID,
		"recipients", n,
	)
}

func (eb *EventBus) BreakerState() circuitbreaker.State {
	return eb.breaker.State()
}
