// Package eventwire connects the reconciliation core to the remote event
// stream over a websocket and feeds decoded events to registered handlers.
package eventwire

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// Handler consumes one decoded event. Handlers run on the read loop
// goroutine, in frame-arrival order.
type Handler func(ctx context.Context, ev events.Event)

type SubscriberOptions struct {
	URL             string
	Handlers        []Handler
	MaxMessageBytes int64
	Logf            func(format string, args ...any)
}

// Subscriber owns one websocket subscription to the event stream. It
// reconnects with backoff until closed; frames that fail to decode are
// logged and skipped, never fatal.
type Subscriber struct {
	url             string
	handlers        []Handler
	maxMessageBytes int64
	logf            func(format string, args ...any)

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("event stream url is required")
	}
	maxMsg := opts.MaxMessageBytes
	if maxMsg <= 0 {
		maxMsg = 4 << 20
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Subscriber{
		url:             url,
		handlers:        opts.Handlers,
		maxMessageBytes: maxMsg,
		logf:            logf,
	}, nil
}

// Subscribe starts the read loop. A second call on a live subscriber is
// rejected. Calling Close before or during the asynchronous install is safe:
// the subscription cancels itself as soon as it observes the closed flag.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	if s == nil {
		return errors.New("subscriber is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("already subscribed")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	alreadyClosed := s.closed
	done := s.done
	s.mu.Unlock()

	if alreadyClosed {
		cancel()
		close(done)
		return nil
	}

	go func() {
		defer close(done)
		s.run(runCtx)
	}()
	return nil
}

// Close tears the subscription down and waits for the read loop to exit.
// Closing a subscriber that never subscribed, or whose Subscribe has not
// finished installing yet, is a no-op beyond marking it closed.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Subscriber) run(ctx context.Context) {
	backoff := 1 * time.Second
	const backoffMax = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return
		}
		err := s.runOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.logf("eventwire: disconnected url=%s err=%v", s.url, err)

		jitter := time.Duration(rand.IntN(500)) * time.Millisecond
		sleep := backoff + jitter
		if sleep > backoffMax {
			sleep = backoffMax
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(s.maxMessageBytes)
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	s.logf("eventwire: connected url=%s", s.url)

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if mt != websocket.MessageText {
			continue
		}
		ev, err := events.Decode(data)
		if err != nil {
			var unknown events.ErrUnknownKind
			if errors.As(err, &unknown) {
				s.logf("eventwire: skipping unknown event kind %q", unknown.Tag)
			} else {
				s.logf("eventwire: skipping malformed frame: %v", err)
			}
			continue
		}
		for _, h := range s.handlers {
			h(ctx, ev)
		}
	}
}
