package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
	"github.com/capbridge/capbridge/internal/stream"
)

// Session is the REST-side session surface the supervisor keeps alive.
type Session interface {
	Login(ctx context.Context) error
	SwitchAccount(ctx context.Context, accountID string) error
	Ping(ctx context.Context) error
	Tokens() (cst, securityToken string)
}

// Dialer builds a stream client. Overridable for tests.
type Dialer func(cfg stream.Config, tokens stream.TokenSource, logger *slog.Logger) stream.Client

// Supervisor owns the quote connection and both keepalive loops. Ticks flow
// into a single queue; a connection loss is delivered in-band as a sentinel
// tick so the consumer never blocks on a dead socket.
type Supervisor struct {
	cfg       config.StreamConfig
	session   Session
	epic      string
	accountID string
	dial      Dialer
	logger    *slog.Logger

	ticks *queue.Queue[model.Tick]
	lost  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current stream.Client
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDialer replaces the stream dialer.
func WithDialer(d Dialer) Option {
	return func(s *Supervisor) {
		s.dial = d
	}
}

// New creates a Supervisor. Start begins the REST keepalive; Connect opens
// the quote stream.
func New(cfg config.StreamConfig, session Session, epic, accountID string, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		cfg:       cfg,
		session:   session,
		epic:      epic,
		accountID: accountID,
		dial:      stream.NewClient,
		logger:    logger,
		ticks:     queue.New[model.Tick](cfg.BufferSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ticks returns the tick queue. A sentinel tick marks a lost connection.
func (s *Supervisor) Ticks() *queue.Queue[model.Tick] {
	return s.ticks
}

// Lost reports whether the quote connection is currently down.
func (s *Supervisor) Lost() bool {
	return s.lost.Load()
}

// Start begins the REST keepalive loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.restKeepalive()

	s.logger.Info("connection supervisor started",
		"rest_ping_interval", s.cfg.RestPingInterval,
		"ping_interval", s.cfg.PingInterval,
	)

	return nil
}

// Stop shuts down the supervisor and closes any open stream.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	if s.current != nil {
		s.current.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("connection supervisor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect opens a fresh quote stream, replacing any previous one. Called
// once at startup and again on every feed reconnect attempt.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	s.mu.Unlock()

	client := s.dial(stream.Config{
		URL:          s.cfg.URL,
		WriteTimeout: s.cfg.WriteTimeout,
		BufferSize:   s.cfg.BufferSize,
	}, s.session.Tokens, s.logger)

	if err := client.Connect(ctx, s.epic); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = client
	s.mu.Unlock()
	s.lost.Store(false)

	// One connection, two goroutines: the pump and its keepalive. Both end
	// with this connection, not with the supervisor.
	connDone := make(chan struct{})
	s.wg.Add(2)
	go s.pump(client, connDone)
	go s.streamKeepalive(client, connDone)

	s.logger.Info("quote stream connected", "epic", s.epic)
	return nil
}

// pump moves quotes from the stream into the tick queue until the
// connection dies or the supervisor stops.
func (s *Supervisor) pump(client stream.Client, connDone chan struct{}) {
	defer s.wg.Done()
	defer close(connDone)

	for {
		select {
		case <-s.ctx.Done():
			client.Close()
			return

		case tick := <-client.Quotes():
			s.ticks.Send(tick)

		case err := <-client.Errors():
			s.logger.Warn("quote stream lost", "error", err)
			s.lost.Store(true)
			s.ticks.Send(model.SentinelTick())
			client.Close()
			return
		}
	}
}

// streamKeepalive pings the socket on a schedule. The venue stops quoting
// during the illiquid window and idle-kills quiet sockets, so the cadence
// tightens inside it.
func (s *Supervisor) streamKeepalive(client stream.Client, connDone <-chan struct{}) {
	defer s.wg.Done()

	timer := time.NewTimer(s.pingInterval(time.Now().UTC()))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-connDone:
			return
		case <-timer.C:
			if err := client.Ping(); err != nil {
				// The pump sees the read error and raises the sentinel.
				s.logger.Debug("stream keepalive failed", "error", err)
			}
			timer.Reset(s.pingInterval(time.Now().UTC()))
		}
	}
}

// pingInterval selects the keepalive cadence for the given instant.
func (s *Supervisor) pingInterval(now time.Time) time.Duration {
	start, end := s.cfg.IlliquidWindow()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := now.Sub(midnight)

	if offset > start && offset < end {
		return s.cfg.IlliquidPingInterval
	}
	return s.cfg.PingInterval
}

// restKeepalive pings the REST session on a schedule and rebuilds it when
// the ping fails. The session dies server-side after ten quiet minutes.
func (s *Supervisor) restKeepalive() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RestPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.session.Ping(s.ctx); err != nil {
				s.logger.Warn("session ping failed, rebuilding", "error", err)
				s.rebuildSession()
			}
		}
	}
}

// rebuildSession retries login until it succeeds or the supervisor stops.
func (s *Supervisor) rebuildSession() {
	for {
		err := s.session.Login(s.ctx)
		if err == nil {
			if err := s.session.SwitchAccount(s.ctx, s.accountID); err != nil {
				s.logger.Warn("account switch failed after rebuild", "error", err)
			}
			s.lost.Store(false)
			s.logger.Info("session rebuilt")
			return
		}

		s.logger.Warn("session rebuild failed",
			"error", err,
			"retry_in", s.cfg.RebuildBackoff,
		)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.RebuildBackoff):
		}
	}
}
