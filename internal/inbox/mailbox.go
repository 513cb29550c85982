package inbox

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"causalcast/internal/causal"
)

// ErrClosed is returned when a message is offered to a stopped mailbox.
var ErrClosed = errors.New("mailbox closed")

const defaultSize = 256

// validator is implemented by receivers that can reject a message up front.
type validator interface {
	Validate(msg causal.Message) error
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithSize sets the channel capacity.
func WithSize(size int) Option {
	return func(m *Mailbox) {
		if size > 0 {
			m.size = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Mailbox) {
		m.logger = logger
	}
}

// WithJitter delays each message by a random duration in [0, max) before it
// reaches the target, so arrivals may be reordered.
func WithJitter(max time.Duration, seed int64) Option {
	return func(m *Mailbox) {
		m.jitter = max
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// Mailbox queues messages for a target receiver.
type Mailbox struct {
	target causal.Receiver
	size   int
	logger log.Logger

	jitter time.Duration
	rngMu  sync.Mutex
	rng    *rand.Rand

	ch      chan causal.Message
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// New creates a mailbox in front of target. Call Start before use.
func New(target causal.Receiver, opts ...Option) *Mailbox {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Mailbox{
		target: target,
		size:   defaultSize,
		logger: log.NewNopLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ch = make(chan causal.Message, m.size)
	return m
}

// Start launches the delivery goroutine. It is a no-op if already started.
func (m *Mailbox) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case msg := <-m.ch:
				m.dispatch(msg)
			}
		}
	}()
}

// Stop stops the mailbox and waits for in-flight deliveries. Messages still
// queued are discarded.
func (m *Mailbox) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Receive queues msg for the target. Messages the target rejects as protocol
// violations are refused immediately instead of being queued. It blocks while
// the queue is full.
func (m *Mailbox) Receive(msg causal.Message) error {
	if v, ok := m.target.(validator); ok {
		if err := v.Validate(msg); err != nil {
			return err
		}
	}

	select {
	case <-m.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case <-m.ctx.Done():
		return ErrClosed
	case m.ch <- msg:
		// Both cases are ready once a stopped mailbox still has room.
		if m.ctx.Err() != nil {
			return ErrClosed
		}
		return nil
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

func (m *Mailbox) dispatch(msg causal.Message) {
	if m.jitter <= 0 {
		m.deliver(msg)
		return
	}

	m.rngMu.Lock()
	delay := time.Duration(m.rng.Int63n(int64(m.jitter)))
	m.rngMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-m.ctx.Done():
		case <-t.C:
			m.deliver(msg)
		}
	}()
}

func (m *Mailbox) deliver(msg causal.Message) {
	if err := m.target.Receive(msg); err != nil {
		level.Warn(m.logger).Log("msg", "target rejected message", "id", msg.ID(), "sender", msg.Sender(), "err", err)
	}
}
