// Streaming transport: one logical gorilla/websocket connection per
// exchange, with single-flight connect, a generation counter, close-code
// classification driving per-category backoff, and the bump-generation /
// open-socket / re-authenticate / re-subscribe / reconcile reconnect
// sequence. Grounded directly on a websocket StreamClient shape used for
// kline streaming elsewhere in this codebase (ReconnectConfig,
// calculateBackoff, a stopCh+sync.Once+mutex-guarded currentConn swap),
// generalized from one venue's kline stream to the single logical
// connection the whole data plane shares, and extended with a jitter term
// and generation counter the original reconnect loop lacks.
package dataplane

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-core/internal/backoff"
	"trading-core/internal/exchange"
)

// ConnState is the transport's connection state machine.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
)

// Hooks are the transport's callbacks into the rest of the data plane.
type Hooks struct {
	OnConnected    func(generation uint64)
	OnDisconnected func(code int, reason string, category exchange.CloseCategory, generation uint64)
	OnMessage      func(payload []byte, generation uint64)
	OnStateChange  func(state ConnState)
	OnError        func(err error)
	// Resubscribe re-issues every channel subscription after a reconnect;
	// ReAuthenticate performs venue auth if required (nil if not needed).
	Resubscribe     func(ctx context.Context, conn *websocket.Conn) error
	ReAuthenticate  func(ctx context.Context, conn *websocket.Conn) error
	TriggerReconcile func(ctx context.Context)
}

// TransportConfig parameterizes reconnect behavior.
type TransportConfig struct {
	URL                    string
	MaxAttemptsPerCategory map[exchange.CloseCategory]int
	ExchangeAuthCodes      map[int]bool
	ExchangeThrottleCodes  map[int]bool
}

// Transport owns the single logical connection.
type Transport struct {
	cfg    TransportConfig
	hooks  Hooks
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	generation uint64
	stopCh     chan struct{}
	connecting chan struct{} // non-nil while a connect attempt is in flight
	connectErr error         // result of the most recent connect attempt

	rng *rand.Rand
}

// New builds a Transport. dialer may be nil to use websocket.DefaultDialer.
func New(cfg TransportConfig, hooks Hooks, dialer *websocket.Dialer) *Transport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if cfg.MaxAttemptsPerCategory == nil {
		cfg.MaxAttemptsPerCategory = map[exchange.CloseCategory]int{
			exchange.CloseAuthFailure: 1,
			exchange.CloseRateLimited: 20,
			exchange.CloseNormal:      1 << 30,
			exchange.CloseUnknown:     10,
		}
	}
	return &Transport{
		cfg: cfg, hooks: hooks, dialer: dialer,
		state: StateDisconnected,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generation returns the current connection's generation counter.
func (t *Transport) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

func (t *Transport) setState(s ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	if t.hooks.OnStateChange != nil {
		t.hooks.OnStateChange(s)
	}
}

// Connect performs a single-flight connect: a call issued while an
// attempt is in progress waits for and returns the existing attempt's
// result instead of starting a duplicate.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connecting != nil {
		ch := t.connecting
		t.mu.Unlock()
		<-ch
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.connectErr
	}
	ch := make(chan struct{})
	t.connecting = ch
	t.mu.Unlock()

	var err error
	defer func() {
		t.mu.Lock()
		t.connectErr = err
		t.connecting = nil
		t.mu.Unlock()
		close(ch)
	}()

	err = t.connectOnce(ctx)
	return err
}

func (t *Transport) connectOnce(ctx context.Context) error {
	t.setState(StateConnecting)
	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.setState(StateDisconnected)
		if t.hooks.OnError != nil {
			t.hooks.OnError(err)
		}
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.generation++
	gen := t.generation
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	if t.hooks.ReAuthenticate != nil {
		if err := t.hooks.ReAuthenticate(ctx, conn); err != nil {
			conn.Close()
			t.setState(StateDisconnected)
			return err
		}
	}
	if t.hooks.Resubscribe != nil {
		if err := t.hooks.Resubscribe(ctx, conn); err != nil {
			conn.Close()
			t.setState(StateDisconnected)
			return err
		}
	}
	if t.hooks.TriggerReconcile != nil {
		t.hooks.TriggerReconcile(ctx)
	}

	t.setState(StateConnected)
	if t.hooks.OnConnected != nil {
		t.hooks.OnConnected(gen)
	}

	go t.readLoop(ctx, conn, gen, stopCh)
	return nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64, stopCh chan struct{}) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			category := exchange.ClassifyCloseCode(code, t.cfg.ExchangeAuthCodes, t.cfg.ExchangeThrottleCodes)
			t.setState(StateDisconnected)
			if t.hooks.OnDisconnected != nil {
				t.hooks.OnDisconnected(code, reason, category, gen)
			}
			select {
			case <-stopCh:
				return
			default:
			}
			t.reconnectLoop(ctx, category)
			return
		}
		select {
		case <-stopCh:
			return
		default:
		}
		if t.hooks.OnMessage != nil {
			t.hooks.OnMessage(payload, gen)
		}
	}
}

func (t *Transport) reconnectLoop(ctx context.Context, category exchange.CloseCategory) {
	t.setState(StateReconnecting)
	bo := backoff.Default()
	if category == exchange.CloseRateLimited {
		bo = backoff.RateLimited()
	}
	maxAttempts := t.cfg.MaxAttemptsPerCategory[category]

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.Delay(attempt, t.rng)):
		}
		if err := t.connectOnce(ctx); err == nil {
			return
		}
	}
	if category == exchange.CloseAuthFailure && t.hooks.OnError != nil {
		t.hooks.OnError(errAuthExhausted)
	}
}

// Stop closes the connection and stops any in-flight reconnect loop.
func (t *Transport) Stop() {
	t.mu.Lock()
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	t.setState(StateDisconnected)
}

// IsConnected reports whether the transport currently holds a live connection.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateConnected
}

func closeInfo(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return 1006, err.Error()
}

var errAuthExhausted = &authExhaustedError{}

type authExhaustedError struct{}

func (e *authExhaustedError) Error() string {
	return "dataplane: auth failure attempts exhausted, stream is fatally down"
}
