package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// ErrSubscriptionClosed is reported to the drop handler when the bus closes
// the signal channel.
var ErrSubscriptionClosed = errors.New("signal subscription closed")

// SignalHandler is called for every signal matching one of the rules.
type SignalHandler func(sig *dbus.Signal)

// DropHandler is called when an established subscription is lost.
type DropHandler func(err error)

// AttachHandler is called after every successful (re)subscription.
type AttachHandler func(reattached bool)

// Subscriber keeps a set of signal match rules attached to a bus.
// When the connection drops it reports the loss and re-attaches on the next
// retry tick.
type Subscriber struct {
	mu     sync.Mutex
	logger *slog.Logger

	connect Connector
	rules   []MatchRule

	retryInterval time.Duration

	onSignal SignalHandler
	onDrop   DropHandler
	onAttach AttachHandler

	conn    *dbus.Conn
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSubscriber creates a Subscriber for the given rules.
func NewSubscriber(connect Connector, logger *slog.Logger, rules ...MatchRule) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		logger:        logger,
		connect:       connect,
		rules:         rules,
		retryInterval: 5 * time.Second,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// SetSignalHandler sets the callback for matching signals.
func (s *Subscriber) SetSignalHandler(handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSignal = handler
}

// SetDropHandler sets the callback for lost subscriptions.
func (s *Subscriber) SetDropHandler(handler DropHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = handler
}

// SetAttachHandler sets the callback for successful subscriptions.
func (s *Subscriber) SetAttachHandler(handler AttachHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAttach = handler
}

// SetRetryInterval sets how long to wait between re-subscription attempts.
func (s *Subscriber) SetRetryInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryInterval = interval
}

// Start attaches the match rules. A failure here is returned to the caller;
// later failures are handled by re-subscribing.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("subscriber already running")
	}
	s.mu.Unlock()

	ch, err := s.attach()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	onAttach := s.onAttach
	s.mu.Unlock()

	if onAttach != nil {
		onAttach(false)
	}

	go s.processSignals(ctx, ch)
	return nil
}

// Stop detaches and closes the connection.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	<-s.doneCh
	s.logger.Debug("signal subscriber stopped")
}

// attach connects, installs the match rules and registers a signal channel.
func (s *Subscriber) attach() (chan *dbus.Signal, error) {
	conn, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}

	for _, rule := range s.rules {
		if err := conn.AddMatchSignal(rule.options()...); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to add match rule %s: %w", rule, err)
		}
		s.logger.Debug("added match rule", "rule", rule.String())
	}

	ch := make(chan *dbus.Signal, 64)
	conn.Signal(ch)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return ch, nil
}

// processSignals dispatches signals until stopped, re-attaching on drops.
func (s *Subscriber) processSignals(ctx context.Context, ch chan *dbus.Signal) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			s.closeConn()
			return
		case <-s.stopCh:
			return
		case sig, ok := <-ch:
			if !ok {
				if s.stopping(ctx) {
					return
				}
				s.handleDrop(ErrSubscriptionClosed)
				ch = s.reattach(ctx)
				if ch == nil {
					return
				}
				continue
			}
			s.dispatch(sig)
		}
	}
}

func (s *Subscriber) dispatch(sig *dbus.Signal) {
	s.mu.Lock()
	handler := s.onSignal
	s.mu.Unlock()

	if handler == nil {
		return
	}
	for _, rule := range s.rules {
		if rule.Matches(sig) {
			handler(sig)
			return
		}
	}
}

func (s *Subscriber) handleDrop(err error) {
	s.mu.Lock()
	handler := s.onDrop
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	s.logger.Warn("signal subscription lost", "error", err)
	if handler != nil {
		handler(err)
	}
}

// reattach retries on every tick until it succeeds or the subscriber stops.
// Returns nil when stopped.
func (s *Subscriber) reattach(ctx context.Context) chan *dbus.Signal {
	s.mu.Lock()
	interval := s.retryInterval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			ch, err := s.attach()
			if err != nil {
				s.logger.Debug("re-subscription failed, will retry", "error", err, "interval", interval)
				continue
			}
			s.logger.Info("signal subscription restored")

			s.mu.Lock()
			onAttach := s.onAttach
			s.mu.Unlock()
			if onAttach != nil {
				onAttach(true)
			}
			return ch
		}
	}
}

// stopping reports whether Stop was called or ctx is done.
func (s *Subscriber) stopping(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Subscriber) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
