package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig controls redis client behavior.
type RedisConfig struct {
	Addr string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	// Must outlast the BLMOVE block time.
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 10 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// DefaultLeaseTTL is how long a consumer stays alive without a heartbeat.
const DefaultLeaseTTL = 30 * time.Second

// Redis is a reliable list queue. Producers LPUSH onto the pending list.
// Each consumer BLMOVEs tasks onto its own processing list and LREMs them on
// Ack. A consumer keeps a lease key alive while it runs, so Recover can tell
// the lists of crashed consumers from those of live ones.
//
// Keys, for queue name N and consumer C:
//
//	N                  pending tasks
//	N:consumers        set of consumer ids
//	N:processing:C     tasks held by C
//	N:lease:C          present while C is alive
type Redis struct {
	rdb       *redis.Client
	name      string
	pending   string
	consumers string
	consumer  string
	poll      time.Duration
	leaseTTL  time.Duration

	mu        sync.Mutex
	closed    bool
	stopBeat  context.CancelFunc
	beatDone  chan struct{}
	closeOnce sync.Once
}

// NewRedis returns a queue stored under name with a fresh consumer id.
func NewRedis(rdb *redis.Client, name string, poll time.Duration) *Redis {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Redis{
		rdb:       rdb,
		name:      name,
		pending:   name,
		consumers: name + ":consumers",
		consumer:  uuid.NewString(),
		poll:      poll,
		leaseTTL:  DefaultLeaseTTL,
	}
}

// Consumer returns the id this instance registers under.
func (q *Redis) Consumer() string { return q.consumer }

func (q *Redis) processingKey(consumer string) string { return q.name + ":processing:" + consumer }

func (q *Redis) leaseKey(consumer string) string { return q.name + ":lease:" + consumer }

func (q *Redis) Enqueue(ctx context.Context, recordID string) error {
	raw, err := Task{RecordID: recordID, EnqueuedAt: time.Now().UTC()}.encode()
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.pending, raw).Err()
}

func (q *Redis) Dequeue(ctx context.Context) (*Delivery, error) {
	if err := q.register(ctx); err != nil {
		return nil, err
	}
	processing := q.processingKey(q.consumer)
	raw, err := q.rdb.BLMove(ctx, q.pending, processing, "RIGHT", "LEFT", q.poll).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ack := func(ctx context.Context) error {
		return q.rdb.LRem(ctx, processing, 1, raw).Err()
	}
	t, err := decodeTask(raw)
	if err != nil {
		// Poison message: drop it so it is not redelivered forever.
		log.Error().Err(err).Str("component", "queue").Str("raw", raw).Msg("dropping undecodable task")
		_ = ack(ctx)
		return nil, nil
	}
	return &Delivery{Task: t, ack: ack}, nil
}

// register takes the lease and joins the consumer set on first use, then
// keeps the lease alive until Close.
func (q *Redis) register(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.stopBeat != nil {
		return nil
	}
	// Lease first: a listed consumer without a lease is dead.
	if err := q.touch(ctx); err != nil {
		return err
	}
	if err := q.rdb.SAdd(ctx, q.consumers, q.consumer).Err(); err != nil {
		return err
	}
	beatCtx, cancel := context.WithCancel(context.Background())
	q.stopBeat = cancel
	q.beatDone = make(chan struct{})
	go q.heartbeat(beatCtx)
	log.Debug().Str("component", "queue").Str("consumer", q.consumer).Msg("consumer registered")
	return nil
}

func (q *Redis) touch(ctx context.Context) error {
	return q.rdb.Set(ctx, q.leaseKey(q.consumer), time.Now().UTC().Format(time.RFC3339Nano), q.leaseTTL).Err()
}

func (q *Redis) heartbeat(ctx context.Context) {
	defer close(q.beatDone)
	t := time.NewTicker(q.leaseTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := q.touch(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("component", "queue").Str("consumer", q.consumer).Msg("lease heartbeat failed")
			}
		}
	}
}

// haltHeartbeat stops the lease refresh and waits for the loop to exit.
func (q *Redis) haltHeartbeat() {
	q.mu.Lock()
	stop, done := q.stopBeat, q.beatDone
	q.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

// Recover moves the tasks held by consumers whose lease has expired back to
// the pending list and forgets those consumers. Deliveries of live
// consumers, this one included, are left alone.
func (q *Redis) Recover(ctx context.Context) (int, error) {
	ids, err := q.rdb.SMembers(ctx, q.consumers).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if id == q.consumer {
			continue
		}
		alive, err := q.rdb.Exists(ctx, q.leaseKey(id)).Result()
		if err != nil {
			return n, err
		}
		if alive > 0 {
			continue
		}
		moved, err := q.drain(ctx, q.processingKey(id))
		n += moved
		if err != nil {
			return n, err
		}
		if err := q.rdb.SRem(ctx, q.consumers, id).Err(); err != nil {
			return n, err
		}
		if moved > 0 {
			log.Info().Str("component", "queue").Str("consumer", id).Int("tasks", moved).Msg("recovered tasks of expired consumer")
		}
	}
	return n, nil
}

// drain moves every task of list onto the dequeue end of the pending list.
func (q *Redis) drain(ctx context.Context, list string) (int, error) {
	n := 0
	for {
		_, err := q.rdb.LMove(ctx, list, q.pending, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Depth returns the pending list length and the number of tasks held by all
// registered consumers.
func (q *Redis) Depth(ctx context.Context) (pending, inFlight int64, err error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return 0, 0, ErrClosed
	}
	if pending, err = q.rdb.LLen(ctx, q.pending).Result(); err != nil {
		return 0, 0, err
	}
	ids, err := q.rdb.SMembers(ctx, q.consumers).Result()
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		l, err := q.rdb.LLen(ctx, q.processingKey(id)).Result()
		if err != nil {
			return 0, 0, err
		}
		inFlight += l
	}
	return pending, inFlight, nil
}

func (q *Redis) Ping(ctx context.Context) error { return q.rdb.Ping(ctx).Err() }

// Close releases the lease so unacknowledged tasks become recoverable at
// once, leaves the consumer set when nothing is held, and closes the client.
func (q *Redis) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		registered := q.stopBeat != nil
		q.mu.Unlock()

		if registered {
			q.haltHeartbeat()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if derr := q.rdb.Del(ctx, q.leaseKey(q.consumer)).Err(); derr != nil {
				log.Warn().Err(derr).Str("component", "queue").Msg("release lease")
			}
			if held, lerr := q.rdb.LLen(ctx, q.processingKey(q.consumer)).Result(); lerr == nil && held == 0 {
				_ = q.rdb.SRem(ctx, q.consumers, q.consumer).Err()
			}
		}
		err = q.rdb.Close()
	})
	return err
}
