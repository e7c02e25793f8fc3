package client

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DialFunc attempts one connection. It returns once the connection is
// established (and its pumps are running) or with the dial error.
type DialFunc func() error

// StateListener observes monitor transitions and the informational health
// probe. Attempt is meaningful only in StateConnecting.
type StateListener interface {
	OnStateChange(s ConnState, attempt int)
	OnNotice(text string)
	OnServerHealth(healthy bool)
}

// Monitor owns the client connection lifecycle: Disconnected -> Connecting(n)
// -> Connected, with bounded capped-backoff retries. After the attempts are
// exhausted it stays Disconnected until Reconnect restarts the cycle.
type Monitor struct {
	mu            sync.Mutex
	state         ConnState
	attempt       int
	cycling       bool
	everConnected bool

	dial     DialFunc
	listener StateListener

	maxAttempts int
	base        time.Duration
	cap         time.Duration

	healthURL      string
	healthInterval time.Duration
	httpClient     *http.Client
	stop           chan struct{}
	stopOnce       sync.Once
}

type MonitorOptions struct {
	MaxAttempts    int
	Base           time.Duration
	Cap            time.Duration
	HealthURL      string
	HealthInterval time.Duration
}

func NewMonitor(dial DialFunc, listener StateListener, opt MonitorOptions) *Monitor {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = 5
	}
	if opt.Base <= 0 {
		opt.Base = 500 * time.Millisecond
	}
	if opt.Cap <= 0 {
		opt.Cap = 8 * time.Second
	}
	if opt.HealthInterval <= 0 {
		opt.HealthInterval = 30 * time.Second
	}
	return &Monitor{
		state:          StateDisconnected,
		dial:           dial,
		listener:       listener,
		maxAttempts:    opt.MaxAttempts,
		base:           opt.Base,
		cap:            opt.Cap,
		healthURL:      opt.HealthURL,
		healthInterval: opt.HealthInterval,
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		stop:           make(chan struct{}),
	}
}

// Start begins the health probe and runs the first connection cycle.
func (m *Monitor) Start() {
	if m.healthURL != "" {
		go m.probeLoop()
	}
	m.startCycle()
}

func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// State returns the current state and, while connecting, the attempt number.
func (m *Monitor) State() (ConnState, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.attempt
}

// ConnectionLost is called by the transport when an established connection
// drops. It transitions Connected -> Connecting(1) and retries.
func (m *Monitor) ConnectionLost(reason error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	if reason != nil {
		m.listener.OnNotice("connection lost: " + reason.Error())
	} else {
		m.listener.OnNotice("connection lost")
	}
	m.startCycle()
}

// Reconnect restarts the retry cycle from attempt 1 after exhaustion, e.g.
// on user action or a network-online event.
func (m *Monitor) Reconnect() {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.startCycle()
}

func (m *Monitor) startCycle() {
	m.mu.Lock()
	if m.cycling {
		m.mu.Unlock()
		return
	}
	m.cycling = true
	m.mu.Unlock()
	go m.cycle()
}

func (m *Monitor) cycle() {
	defer func() {
		m.mu.Lock()
		m.cycling = false
		m.mu.Unlock()
	}()

	m.mu.Lock()
	recon := m.everConnected
	m.mu.Unlock()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.setState(StateConnecting, attempt)
		if err := m.dial(); err == nil {
			m.setState(StateConnected, 0)
			if recon {
				m.listener.OnNotice("reconnected")
			}
			return
		}
		select {
		case <-time.After(m.backoff(attempt)):
		case <-m.stop:
			return
		}
	}
	m.setState(StateDisconnected, 0)
	m.listener.OnNotice("could not reach server, reconnect manually")
}

func (m *Monitor) backoff(attempt int) time.Duration {
	d := m.base << uint(attempt-1)
	if d > m.cap || d <= 0 {
		d = m.cap
	}
	return d
}

func (m *Monitor) setState(s ConnState, attempt int) {
	m.mu.Lock()
	m.state = s
	m.attempt = attempt
	if s == StateConnected {
		m.everConnected = true
	}
	m.mu.Unlock()
	m.listener.OnStateChange(s, attempt)
}

// probeLoop periodically reports server health. Informational only; it never
// drives the state machine.
func (m *Monitor) probeLoop() {
	t := time.NewTicker(m.healthInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.listener.OnServerHealth(m.probeOnce())
		}
	}
}

func (m *Monitor) probeOnce() bool {
	resp, err := m.httpClient.Get(m.healthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}
