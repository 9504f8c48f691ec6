package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"telemetryagent/internal/event"
)

const spoolTimeout = 5 * time.Second

// SpoolOptions configures a Spool.
type SpoolOptions struct {
	Address   string
	Password  string
	DB        int
	Key       string
	MaxLength int64 // oldest entries are trimmed past this length, 0 keeps all

	// Dialer is optional, e.g. a SOCKS proxy dialer.
	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Spool keeps failed events in a capped Redis list so they can be replayed
// after a restart.
type Spool struct {
	client    *redis.Client
	key       string
	maxLength int64
	log       zerolog.Logger
}

// NewSpool creates a spool observer backed by a new Redis client.
func NewSpool(opts SpoolOptions, log zerolog.Logger) (*Spool, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("spool requires a Redis key")
	}

	redisOpts := &redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.Dialer != nil {
		redisOpts.Dialer = opts.Dialer
	}

	return &Spool{
		client:    redis.NewClient(redisOpts),
		key:       opts.Key,
		maxLength: opts.MaxLength,
		log:       log,
	}, nil
}

// Ping checks that Redis is reachable.
func (s *Spool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, spoolTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *Spool) OnSuccess(int) {}

// OnFailure appends the failed events to the list. Redis errors are logged.
func (s *Spool) OnFailure(_ int, failed []event.Event) {
	if len(failed) == 0 {
		return
	}

	values := make([]interface{}, 0, len(failed))
	for _, ev := range failed {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Warn().Err(err).Str("event_id", ev.ID()).Msg("Failed to encode event for spool")
			continue
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), spoolTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, values...)
	if s.maxLength > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLength, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int("count", len(values)).Msg("Failed to spool events")
		return
	}
	s.log.Debug().Int("count", len(values)).Str("key", s.key).Msg("Spooled failed events")
}

// Len returns the number of spooled events.
func (s *Spool) Len(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, spoolTimeout)
	defer cancel()
	return s.client.LLen(ctx, s.key).Result()
}

// Replay pops the events spooled before the call, oldest first, and hands
// them to emit. Events that fail again while replaying are appended behind
// that snapshot and left for the next Replay. When emit fails the event is
// pushed back to the head of the list and Replay stops. Entries that no
// longer decode are discarded.
func (s *Spool) Replay(ctx context.Context, emit func(event.Event) error) (int, error) {
	pending, err := s.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("Redis LLEN %s failed: %w", s.key, err)
	}

	replayed := 0
	for ; pending > 0; pending-- {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		data, err := s.client.LPop(ctx, s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return replayed, nil
		}
		if err != nil {
			return replayed, fmt.Errorf("Redis LPOP %s failed: %w", s.key, err)
		}

		var ev event.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("Discarding undecodable spooled event")
			continue
		}

		if err := emit(ev); err != nil {
			if perr := s.client.LPush(context.Background(), s.key, data).Err(); perr != nil {
				s.log.Warn().Err(perr).Str("event_id", ev.ID()).Msg("Failed to return event to spool")
			}
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// Close closes the Redis client.
func (s *Spool) Close() error {
	return s.client.Close()
}
