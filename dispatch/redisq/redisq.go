// Package redisq is a Redis list backed refresh queue. Producers LPUSH
// msgpack-encoded requests onto "<prefix>:refresh". A consumer moves each
// request into its processing list with BLMOVE, hands it to a
// cacheback.Worker and removes it with LREM once the refresh ran. Requests
// left in a processing list by a consumer that died are pushed back onto the
// queue when a consumer with the same ID starts, so delivery is at least once.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/cacheback"
)

var ErrNilClient = errors.New("redisq: nil redis client")

const defaultPrefix = "cacheback"

func listKey(prefix string) string {
	return coalescePrefix(prefix) + ":refresh"
}

func processingKey(prefix, id string) string {
	k := coalescePrefix(prefix) + ":processing"
	if id != "" {
		k += ":" + id
	}
	return k
}

func coalescePrefix(prefix string) string {
	if prefix == "" {
		return defaultPrefix
	}
	return prefix
}

// Queue is the producer side. It implements cacheback.Dispatcher.
type Queue struct {
	rdb redis.UniversalClient
	key string
}

var _ cacheback.Dispatcher = (*Queue)(nil)

func NewQueue(client redis.UniversalClient, prefix string) (*Queue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Queue{rdb: client, key: listKey(prefix)}, nil
}

func (q *Queue) Enqueue(ctx context.Context, req cacheback.RefreshRequest) error {
	b, err := msgpack.Marshal(&req)
	if err != nil {
		return fmt.Errorf("redisq: encode %q: %w", req.Job, err)
	}
	return q.rdb.LPush(ctx, q.key, b).Err()
}

// Len returns the number of waiting requests.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Key returns the Redis list the queue writes to.
func (q *Queue) Key() string { return q.key }

type ConsumerOptions struct {
	Client redis.UniversalClient // required
	Worker *cacheback.Worker     // required
	Prefix string                // "" => "cacheback"
	Logger cacheback.Logger      // nil => NopLogger

	// ID names the consumer's processing list, "<prefix>:processing:<id>".
	// Consumers running at the same time need distinct, stable IDs; a
	// restarted consumer reclaims what its predecessor left behind. "" =>
	// "<prefix>:processing".
	ID string

	// PollTimeout bounds each BLMOVE so Run notices cancellation. 0 => 1s.
	PollTimeout time.Duration
	// ErrorBackoff is the pause after a Redis error. 0 => 1s.
	ErrorBackoff time.Duration
}

// Consumer pops requests and performs them one at a time. Run several
// consumers, each with its own ID, for parallelism.
type Consumer struct {
	rdb        redis.UniversalClient
	worker     *cacheback.Worker
	key        string
	processing string
	log        cacheback.Logger
	poll       time.Duration
	backoff    time.Duration
}

func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	if opts.Client == nil {
		return nil, ErrNilClient
	}
	if opts.Worker == nil {
		return nil, errors.New("redisq: worker is required")
	}
	c := &Consumer{
		rdb:        opts.Client,
		worker:     opts.Worker,
		key:        listKey(opts.Prefix),
		processing: processingKey(opts.Prefix, opts.ID),
		log:        opts.Logger,
		poll:       opts.PollTimeout,
		backoff:    opts.ErrorBackoff,
	}
	if c.log == nil {
		c.log = cacheback.NopLogger{}
	}
	if c.poll <= 0 {
		c.poll = time.Second
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c, nil
}

// ProcessingKey returns the list holding requests taken but not yet acknowledged.
func (c *Consumer) ProcessingKey() string { return c.processing }

// Run reclaims unacknowledged requests, then consumes until ctx is cancelled.
// It returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if n, err := c.Recover(ctx); err != nil {
		c.log.Warn("reclaiming unacknowledged refreshes failed", cacheback.Fields{"queue": c.processing, "err": err})
	} else if n > 0 {
		c.log.Info("reclaimed unacknowledged refreshes", cacheback.Fields{"queue": c.processing, "count": n})
	}
	c.log.Info("refresh consumer started", cacheback.Fields{"queue": c.key})
	for {
		if err := ctx.Err(); err != nil {
			c.log.Info("refresh consumer stopped", cacheback.Fields{"queue": c.key})
			return err
		}
		_, err := c.Step(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		c.log.Warn("refresh queue pop failed", cacheback.Fields{"queue": c.key, "err": err})
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff):
		}
	}
}

// Recover moves every request in the processing list back onto the queue and
// returns how many were moved.
func (c *Consumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.rdb.LMove(ctx, c.processing, c.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Step takes at most one request, waiting up to the poll timeout, and
// performs it. ok is false when nothing was taken or the payload was
// undecodable. A request whose refresh was cut short by ctx stays in the
// processing list for Recover.
func (c *Consumer) Step(ctx context.Context) (ok bool, err error) {
	raw, err := c.rdb.BLMove(ctx, c.key, c.processing, "RIGHT", "LEFT", c.poll).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var req cacheback.RefreshRequest
	if err := msgpack.Unmarshal([]byte(raw), &req); err != nil {
		c.log.Error("dropping undecodable refresh request", cacheback.Fields{"queue": c.key, "err": err})
		return false, c.ack(ctx, raw)
	}
	c.worker.Perform(ctx, req)
	if ctx.Err() != nil {
		return true, nil
	}
	return true, c.ack(ctx, raw)
}

func (c *Consumer) ack(ctx context.Context, raw string) error {
	return c.rdb.LRem(ctx, c.processing, 1, raw).Err()
}
