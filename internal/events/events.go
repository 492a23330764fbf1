// Package events publishes a durable, resumable stream of monitor check
// and state-change events. Consumers can subscribe for best-effort direct
// pushes, or resume from a cursor after a reconnect (the HTTP API's event
// feed reads this way, via Since), trading a bounded amount of history for
// never requiring a consumer to keep up in real time.
package events

import (
	"sync"
	"time"
)

// maxBuffer bounds the durable in-memory log. Once exceeded, the oldest
// event is evicted; consumers that fall behind by more than maxBuffer
// events lose the ability to resume from their cursor and must
// resynchronize from a full snapshot instead.
const maxBuffer = 10000

// Type distinguishes the kind of event recorded.
type Type string

const (
	TypeCheckResult       Type = "check_result"
	TypeStateChange       Type = "state_change"
	TypeIncidentOpen      Type = "incident_opened"
	TypeIncidentEnd       Type = "incident_resolved"
	TypeVerificationAlert Type = "verification_alert"
)

// Event is one entry in the durable stream. Cursor is monotonically
// increasing and never reused, so consumers can resume with
// Since(cursor) after a reconnect.
type Event struct {
	Cursor    uint64
	MonitorID string
	CheckID   string
	Type      Type
	Reason    string
	At        time.Time
	Payload   any
}

// key identifies an event for idempotent-consumer deduplication: the
// contract is that processing the same (MonitorID, CheckID) pair twice
// must be safe, not that the publisher itself deduplicates.
func (e Event) key() string {
	return e.MonitorID + "|" + e.CheckID
}

// Publisher is the durable append-only stream. It is safe for concurrent
// use by many producers and consumers.
type Publisher struct {
	mu        sync.Mutex
	buf       []Event
	nextCursor uint64
	subs      map[int]chan Event
	nextSubID int
}

// NewPublisher constructs an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		nextCursor: 1,
		subs:       make(map[int]chan Event),
	}
}

// Publish appends an event to the durable log and best-effort pushes it
// to every live subscriber. A subscriber whose channel is full misses the
// direct push but can still recover the event via Since, until it ages
// out of maxBuffer.
func (p *Publisher) Publish(evt Event) Event {
	p.mu.Lock()
	evt.Cursor = p.nextCursor
	p.nextCursor++
	p.buf = append(p.buf, evt)
	if len(p.buf) > maxBuffer {
		p.buf = p.buf[len(p.buf)-maxBuffer:]
	}
	subs := make([]chan Event, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Best-effort: a slow consumer drops the direct push and must
			// resume from its last cursor instead.
		}
	}
	return evt
}

// Since returns every event with a cursor strictly greater than after,
// oldest first. If after is older than the retained window, the returned
// slice starts from the oldest event still buffered and callers should
// treat the gap as a required resynchronization.
func (p *Publisher) Since(after uint64) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Event, 0, len(p.buf))
	for _, e := range p.buf {
		if e.Cursor > after {
			out = append(out, e)
		}
	}
	return out
}

// LatestCursor returns the cursor of the most recently published event,
// or 0 if nothing has been published yet.
func (p *Publisher) LatestCursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1].Cursor
}

// Subscribe registers a new best-effort direct-push channel. Callers must
// call the returned cancel function when done to release the channel.
func (p *Publisher) Subscribe(buffer int) (ch <-chan Event, cancel func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	c := make(chan Event, buffer)
	p.subs[id] = c
	p.mu.Unlock()

	return c, func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Consumer tracks a resumable reader's position and deduplicates events
// by (MonitorID, CheckID) so that re-delivery after a reconnect (or a
// direct push racing a Since replay) never double-processes the same
// check.
type Consumer struct {
	mu      sync.Mutex
	cursor  uint64
	seen    map[string]struct{}
	seenCap int
}

// NewConsumer creates a Consumer starting from cursor (0 to replay
// everything still buffered).
func NewConsumer(cursor uint64) *Consumer {
	return &Consumer{cursor: cursor, seen: make(map[string]struct{}), seenCap: maxBuffer}
}

// Accept reports whether evt should be processed (false means it is a
// duplicate of one already accepted) and advances the consumer's cursor
// regardless.
func (c *Consumer) Accept(evt Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if evt.Cursor > c.cursor {
		c.cursor = evt.Cursor
	}

	k := evt.key()
	if _, dup := c.seen[k]; dup {
		return false
	}
	if len(c.seen) >= c.seenCap {
		c.seen = make(map[string]struct{}, c.seenCap)
	}
	c.seen[k] = struct{}{}
	return true
}

// Cursor returns the consumer's current resume position.
func (c *Consumer) Cursor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}
