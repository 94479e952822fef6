// Package queue implements an at-least-once job queue on Redis streams.
//
// Producers append messages with XADD; workers lease them through a consumer
// group. A lease is the pending-entry state Redis tracks per consumer: a
// message stays invisible to other workers while pending, and becomes
// claimable again once its idle time exceeds the lease timeout. Ack removes
// the entry for good. A worker that crashes mid-job simply lets the lease
// expire and the message is redelivered elsewhere.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelworks/reelpress/internal/tracing"
)

const payloadField = "payload"

// Message is the unit of work exchanged over the queue. The input location
// is advisory; consumers treat the video record as the source of truth.
type Message struct {
	JobID      string               `json:"job_id"`
	VideoID    string               `json:"video_id"`
	InputKey   string               `json:"input_key"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	Trace      tracing.TraceCarrier `json:"trace,omitempty"`
}

// Lease is one delivery of a message. Deliveries counts how many times the
// message has been handed to a consumer, including this one.
type Lease struct {
	ID         string
	Message    Message
	Deliveries int64
}

type Config struct {
	Stream       string
	Group        string
	Consumer     string
	LeaseTimeout time.Duration
	PollWait     time.Duration
}

// Client is a producer/consumer handle on one stream and group.
type Client struct {
	rdb *redis.Client
	cfg Config
}

func NewClient(rdb *redis.Client, cfg Config) *Client {
	return &Client{rdb: rdb, cfg: cfg}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
// Safe to call from every process at startup.
func (c *Client) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create group %q on %q: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Enqueue appends a message to the stream. The message is durable once XADD
// returns; handing work to the queue never depends on any worker being up.
func (c *Client) Enqueue(ctx context.Context, msg Message) (string, error) {
	if msg.VideoID == "" {
		return "", errors.New("queue: message missing video id")
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: map[string]any{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue video %s: %w", msg.VideoID, err)
	}
	return id, nil
}

// LeaseNext returns the next available message, or (nil, nil) when nothing
// arrives within the poll wait. Expired leases from dead consumers are
// reclaimed before new entries are read, so redelivery is not starved by a
// busy stream.
func (c *Client) LeaseNext(ctx context.Context) (*Lease, error) {
	if lease, err := c.claimExpired(ctx); err != nil || lease != nil {
		return lease, err
	}

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    1,
		Block:    c.cfg.PollWait,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stream %q: %w", c.cfg.Stream, err)
	}
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			return c.toLease(ctx, entry)
		}
	}
	return nil, nil
}

func (c *Client) claimExpired(ctx context.Context) (*Lease, error) {
	entries, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.LeaseTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim expired leases: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return c.toLease(ctx, entries[0])
}

func (c *Client) toLease(ctx context.Context, entry redis.XMessage) (*Lease, error) {
	raw, ok := entry.Values[payloadField].(string)
	if !ok {
		// Malformed entry: drop it so it cannot wedge the group.
		_ = c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, entry.ID).Err()
		_ = c.rdb.XDel(ctx, c.cfg.Stream, entry.ID).Err()
		return nil, fmt.Errorf("entry %s has no payload field", entry.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		_ = c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, entry.ID).Err()
		_ = c.rdb.XDel(ctx, c.cfg.Stream, entry.ID).Err()
		return nil, fmt.Errorf("decode entry %s: %w", entry.ID, err)
	}
	return &Lease{ID: entry.ID, Message: msg, Deliveries: c.deliveries(ctx, entry.ID)}, nil
}

func (c *Client) deliveries(ctx context.Context, id string) int64 {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

// Ack acknowledges a delivered message and trims it from the stream. Acking
// an already-acked or reclaimed lease is harmless.
func (c *Client) Ack(ctx context.Context, lease *Lease) error {
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, lease.ID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", lease.ID, err)
	}
	if err := c.rdb.XDel(ctx, c.cfg.Stream, lease.ID).Err(); err != nil {
		return fmt.Errorf("trim %s: %w", lease.ID, err)
	}
	return nil
}

// Depth reports the total number of entries in the stream, leased or not.
func (c *Client) Depth(ctx context.Context) (int64, error) {
	n, err := c.rdb.XLen(ctx, c.cfg.Stream).Result()
	if err != nil {
		return 0, fmt.Errorf("stream length: %w", err)
	}
	return n, nil
}

// PendingCount reports how many entries are currently leased by consumers.
func (c *Client) PendingCount(ctx context.Context) (int64, error) {
	info, err := c.rdb.XPending(ctx, c.cfg.Stream, c.cfg.Group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return info.Count, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
