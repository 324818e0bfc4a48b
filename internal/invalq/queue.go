// Package invalq is the process-wide invalidation queue (spec §2 item 3,
// §4.3): a multi-producer/multi-consumer queue of invalidation messages
// shared between workers in one process. In-process fan-out is the
// required delivery path (spec §5: "multi-process, single-threaded-per-
// worker... the shared invalidation queue... [is] the only inter-worker
// contact point"); an optional NATS JetStream publish layers on top for
// out-of-process observers.
//
// Structure adapted from eventbus.Bus: a registration list consumed under a
// lock, graceful degradation when JetStream is unset, and fire-and-forget
// JetStream errors that are logged rather than propagated.
package invalq

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/relcore/dbcore/internal/invalidation"
)

// Consumer is a worker's view into the queue: each call to Drain returns
// every message enqueued since that consumer's last Drain.
type Consumer struct {
	q      *Queue
	cursor int
}

// Queue is the one process-wide invalidation queue, owned by a Process
// value per spec §9's design notes (the invalidation queue is "the one
// genuinely shared object, owned by a Process value that outlives all
// Workers").
type Queue struct {
	mu   sync.Mutex
	log  []invalidation.Message
	js   nats.JetStreamContext
	subj string
}

// New returns an empty Queue. subj names the JetStream subject messages are
// published to when JetStream is configured; it is ignored otherwise.
func New(subj string) *Queue {
	if subj == "" {
		subj = "dbcore.invalidation"
	}
	return &Queue{subj: subj}
}

// SetJetStream attaches an optional JetStream context for supplementary,
// out-of-process broadcast. Nil disables it.
func (q *Queue) SetJetStream(js nats.JetStreamContext) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.js = js
}

// JetStreamEnabled reports whether JetStream publishing is configured.
func (q *Queue) JetStreamEnabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.js != nil
}

// NewConsumer returns a Consumer positioned at the queue's current tail, so
// it will only observe messages enqueued after this call.
func (q *Queue) NewConsumer() *Consumer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &Consumer{q: q, cursor: len(q.log)}
}

// Broadcast appends msgs to the shared queue, in order, atomically with
// respect to other producers: once a worker observes any message from this
// call it will observe all of them (spec §4.3's ordering guarantee). It is
// called once, at commit, with the committing worker's local invalidation
// list (spec §4.1 commit step 5).
func (q *Queue) Broadcast(ctx context.Context, msgs []invalidation.Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	q.log = append(q.log, msgs...)
	js := q.js
	subj := q.subj
	q.mu.Unlock()

	if js != nil {
		publishToJetStream(ctx, js, subj, msgs)
	}
}

// publishToJetStream is fire-and-forget: JetStream is supplementary to the
// required in-process path, so a publish failure is logged, never returned.
func publishToJetStream(ctx context.Context, js nats.JetStreamContext, subj string, msgs []invalidation.Message) {
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			log.Printf("invalq: context canceled publishing to %s: %v", subj, err)
			return
		}
		if _, err := js.Publish(subj, encode(m)); err != nil {
			log.Printf("invalq: jetstream publish to %s failed: %v", subj, err)
		}
	}
}

func encode(m invalidation.Message) []byte {
	return []byte(fmt.Sprintf("%d:%d:%d:%d:%d:%d:%t", m.Kind, m.CacheID, m.HashIndex, m.RowPtr, m.RelID, m.ObjectID, m.OnlyZeroRefs))
}

// Drain returns every message enqueued since the consumer's last Drain
// call, advancing its cursor past them. Called at the start of
// begin-statement (spec §4.3 consumer side).
func (c *Consumer) Drain() []invalidation.Message {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	if c.cursor >= len(c.q.log) {
		return nil
	}
	out := make([]invalidation.Message, len(c.q.log)-c.cursor)
	copy(out, c.q.log[c.cursor:])
	c.cursor = len(c.q.log)
	return out
}
