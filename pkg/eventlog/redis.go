package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink provides session-scoped Redis operations for the event log.
// All keys and channels are namespaced with the session ID.
// The sink is thread-safe.
type RedisSink struct {
	rdb       *redis.Client
	sessionID string
}

// NewRedisSink creates a sink for the specified session.
// Returns an error if sessionID is empty.
func NewRedisSink(redisOpts *redis.Options, sessionID string) (*RedisSink, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	return &RedisSink{
		rdb:       redis.NewClient(redisOpts),
		sessionID: sessionID,
	}, nil
}

// SessionID returns the session this sink writes to.
func (s *RedisSink) SessionID() string {
	return s.sessionID
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Used by the status server health check.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// RegisterSession adds the session to the sessions index.
func (s *RedisSink) RegisterSession(ctx context.Context, startedAt time.Time) error {
	z := redis.Z{
		Score:  float64(startedAt.UnixMilli()),
		Member: s.sessionID,
	}
	if err := s.rdb.ZAdd(ctx, SessionsKey, z).Err(); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Record appends the event to the session stream and publishes it.
// trial_end rows are additionally stored as a hash keyed by trial index.
func (s *RedisSink) Record(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	hash := EventToHash(ev)
	args := &redis.XAddArgs{
		Stream: EventsKey(s.sessionID),
		Values: hash,
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append event to Redis: %w", err)
	}

	if ev.Type == EventTrialEnd {
		key := TrialKey(s.sessionID, ev.TrialIndex)
		if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
			return fmt.Errorf("failed to write trial to Redis: %w", err)
		}
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, EventStreamChannel(s.sessionID), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// ListEvents returns every event of the session in log order.
// Returns an empty slice if the session has no events.
func (s *RedisSink) ListEvents(ctx context.Context) ([]Event, error) {
	msgs, err := s.rdb.XRange(ctx, EventsKey(s.sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from Redis: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		hash := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			hash[k] = fmt.Sprint(v)
		}
		ev, err := HashToEvent(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}

	return events, nil
}

// GetTrial retrieves the trial_end row of a finished trial.
// Returns (nil, redis.Nil) if the trial does not exist; use IsNotFound.
func (s *RedisSink) GetTrial(ctx context.Context, index int) (*Event, error) {
	hashData, err := s.rdb.HGetAll(ctx, TrialKey(s.sessionID, index)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read trial from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	ev, err := HashToEvent(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize trial: %w", err)
	}
	return &ev, nil
}

// SessionRecord is one entry of the sessions index.
type SessionRecord struct {
	ID        string
	StartedAt time.Time
}

// ListSessions returns known sessions, newest first.
func ListSessions(ctx context.Context, rdb *redis.Client) ([]SessionRecord, error) {
	results, err := rdb.ZRevRangeWithScores(ctx, SessionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]SessionRecord, 0, len(results))
	for _, z := range results {
		id, _ := z.Member.(string)
		sessions = append(sessions, SessionRecord{
			ID:        id,
			StartedAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return sessions, nil
}

// Client exposes the underlying Redis client for session-independent queries.
func (s *RedisSink) Client() *redis.Client {
	return s.rdb
}

// Subscription represents an active Pub/Sub subscription to session events.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of events. It is closed when the subscription
// is closed or the context is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
// The subscription continues after errors; the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to live events of this session.
// Delivery is at-most-once (Redis Pub/Sub); a slow subscriber may miss events.
func (s *RedisSink) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, EventStreamChannel(s.sessionID))

	// Wait for the subscription to be confirmed so no event published after
	// this call returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	eventsChan := make(chan Event, 64)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
