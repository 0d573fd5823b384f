// Package notify is a single-slot transient message channel. Posting a message
// replaces the visible one; each message hides itself after its TTL.
package notify

import (
	"sync"
	"time"
)

// Kind classifies a notification for rendering.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// DefaultTTL is used when the channel is created with a non-positive TTL.
const DefaultTTL = 4 * time.Second

// Notification is the current slot content. ID increases with every post.
type Notification struct {
	ID      uint64 `json:"id"`
	Text    string `json:"text"`
	Kind    Kind   `json:"kind"`
	Visible bool   `json:"visible"`
}

// Option customizes a single post.
type Option func(*postOptions)

type postOptions struct {
	ttl time.Duration
}

// WithTTL overrides the channel's default TTL for one message. A TTL of zero
// or less keeps the message until it is replaced or dismissed.
func WithTTL(ttl time.Duration) Option {
	return func(o *postOptions) { o.ttl = ttl }
}

// Channel holds at most one visible message.
type Channel struct {
	mu          sync.Mutex
	current     Notification
	timer       *time.Timer
	ttl         time.Duration
	subscribers []func(Notification)
	closed      bool

	// version counts slot changes. Changes are published in version order
	// and a change overtaken by a newer one is not published.
	version    uint64
	dispatchMu sync.Mutex
	dispatched uint64
}

// New creates a channel with the given default TTL.
func New(defaultTTL time.Duration) *Channel {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Channel{ttl: defaultTTL}
}

// Post shows text, replacing and un-timing any current message.
func (c *Channel) Post(text string, kind Kind, opts ...Option) Notification {
	o := postOptions{ttl: c.ttl}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	if c.closed {
		n := c.current
		c.mu.Unlock()
		return n
	}
	c.stopTimerLocked()
	c.current = Notification{ID: c.current.ID + 1, Text: text, Kind: kind, Visible: true}
	n := c.current
	if o.ttl > 0 {
		id := n.ID
		c.timer = time.AfterFunc(o.ttl, func() { c.expire(id) })
	}
	c.version++
	version, subs := c.version, c.subscribers
	c.mu.Unlock()

	c.publish(version, subs, n)
	return n
}

// Current returns the slot content.
func (c *Channel) Current() Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Dismiss hides the current message immediately.
func (c *Channel) Dismiss() {
	c.hide(0)
}

func (c *Channel) expire(id uint64) {
	c.hide(id)
}

// hide clears visibility. A non-zero id only hides that message, so a timer
// that fires after its message was replaced does nothing.
func (c *Channel) hide(id uint64) {
	c.mu.Lock()
	if !c.current.Visible || (id != 0 && c.current.ID != id) {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.current.Visible = false
	n := c.current
	c.version++
	version, subs := c.version, c.subscribers
	c.mu.Unlock()

	c.publish(version, subs, n)
}

// Subscribe registers fn to observe every change. fn runs without the
// channel lock held.
func (c *Channel) Subscribe(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]func(Notification), len(c.subscribers), len(c.subscribers)+1)
	copy(next, c.subscribers)
	c.subscribers = append(next, fn)
}

// Close stops the pending timer. Later posts are ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) publish(version uint64, subs []func(Notification), n Notification) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if version <= c.dispatched {
		return
	}
	c.dispatched = version
	for _, fn := range subs {
		fn(n)
	}
}
