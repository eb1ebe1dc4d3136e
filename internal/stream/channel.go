package stream

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrEmpty is returned by TryRead when no fragment is buffered yet.
	ErrEmpty = errors.New("stream: no fragment buffered")
	// ErrCleared is returned once to every reader whose channel was reset.
	ErrCleared = errors.New("stream: channel cleared")
)

// Channel is an unbounded fragment log for one user. Push never blocks.
// Each Reader keeps its own cursor, so every reader sees every fragment in
// push order. Reset discards the log and wakes all readers.
type Channel struct {
	mu     sync.Mutex
	buf    []Fragment
	gen    uint64
	notify chan struct{}
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{})}
}

// Push appends f and wakes waiting readers.
func (c *Channel) Push(f Fragment) {
	c.mu.Lock()
	c.buf = append(c.buf, f)
	c.wakeLocked()
	c.mu.Unlock()
}

// Reset drops buffered fragments. Readers observe ErrCleared on their next read.
func (c *Channel) Reset() {
	c.mu.Lock()
	c.buf = nil
	c.gen++
	c.wakeLocked()
	c.mu.Unlock()
}

// Len reports the number of fragments buffered since the last reset.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// NewReader opens a reader positioned at the start of the current log.
func (c *Channel) NewReader() *Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Reader{ch: c, gen: c.gen}
}

func (c *Channel) wakeLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// Reader is a cursor over a Channel. A Reader is not safe for concurrent use;
// open one per consumer.
type Reader struct {
	ch  *Channel
	gen uint64
	pos int
}

// TryRead returns the next fragment without blocking. It returns ErrEmpty when
// nothing new is buffered and ErrCleared once after a reset, after which the
// reader continues from the start of the fresh log.
func (r *Reader) TryRead() (Fragment, error) {
	f, _, err := r.poll()
	return f, err
}

// Next waits for the next fragment, a reset, or ctx to be done.
func (r *Reader) Next(ctx context.Context) (Fragment, error) {
	for {
		f, wake, err := r.poll()
		if !errors.Is(err, ErrEmpty) {
			return f, err
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return Fragment{}, ctx.Err()
		}
	}
}

func (r *Reader) poll() (Fragment, <-chan struct{}, error) {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.gen != c.gen {
		r.gen = c.gen
		r.pos = 0
		return Fragment{}, nil, ErrCleared
	}
	if r.pos < len(c.buf) {
		f := c.buf[r.pos]
		r.pos++
		return f, nil, nil
	}
	return Fragment{}, c.notify, ErrEmpty
}
