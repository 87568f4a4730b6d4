package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	aqm "github.com/aquamarinepk/aqm/log"
	"github.com/gorilla/websocket"

	"github.com/appetiteclub/tableside/internal/effects"
	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/session"
)

const (
	// reconnectDelay is the fixed wait before a single reconnection
	// attempt after an unexpected close.
	reconnectDelay = 3 * time.Second

	writeTimeout = 10 * time.Second
)

// Manager owns one logical realtime connection per (table token, live
// session) pair: dialing, identity announcement, reconnection and teardown.
// Every connection attempt gets a generation number; asynchronous callbacks
// compare generations and become no-ops when a newer attempt superseded
// them, so a slow stale socket can never overwrite fresher state.
type Manager struct {
	store  *session.Store
	runner *effects.Runner
	logger aqm.Logger
	dialer *websocket.Dialer

	baseURL string

	mu             sync.Mutex
	generation     uint64
	conn           *websocket.Conn
	connected      bool
	announced      bool
	token          string
	lastError      string
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

// NewManager builds a manager speaking to the realtime endpoint base (e.g.
// wss://api.example.com/realtime). runner may be nil when no UI effects are
// wanted; logger nil falls back to noop.
func NewManager(baseURL string, store *session.Store, runner *effects.Runner, logger aqm.Logger) *Manager {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if runner == nil {
		runner = effects.NewRunner(nil, nil, logger)
	}
	return &Manager{
		store:   store,
		runner:  runner,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		baseURL: baseURL,
	}
}

// Connect establishes (or re-establishes) the connection for a table token.
// Empty tokens and terminally ended sessions are explicit no-ops. A call
// that supersedes a live attempt closes the prior socket with a normal
// closure, cancels any pending reconnect and mints a new generation.
func (m *Manager) Connect(tableToken string) {
	if tableToken == "" {
		m.logger.Debug("connect skipped: empty table token")
		return
	}
	if m.store.SessionEnded() {
		m.logger.Debug("connect skipped: session ended")
		return
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.cancelReconnectLocked()
	prior := m.conn
	m.conn = nil
	m.connected = false
	m.announced = false
	m.token = tableToken
	m.mu.Unlock()

	if prior != nil {
		closeNormally(prior)
	}

	go m.dial(gen, tableToken)
}

func (m *Manager) dial(gen uint64, token string) {
	url := fmt.Sprintf("%s/tables/%s/ws", m.baseURL, token)
	conn, _, err := m.dialer.Dial(url, nil)

	m.mu.Lock()
	if gen != m.generation {
		// Superseded while dialing.
		m.mu.Unlock()
		if err == nil {
			closeNormally(conn)
		}
		return
	}
	if err != nil {
		m.connected = false
		m.lastError = "cannot reach table channel"
		m.mu.Unlock()
		m.logger.Errorf("realtime dial failed: %v", err)
		m.scheduleReconnect(gen)
		return
	}

	m.conn = conn
	m.connected = true
	m.lastError = ""
	// Fresh connection: identity must be re-announced even if a previous
	// connection already did.
	m.announced = false
	m.mu.Unlock()

	m.logger.Info("realtime connected", "table_token", token)
	m.AnnounceIdentity()

	go m.readLoop(gen, conn)
}

// AnnounceIdentity sends IDENTITY_JOINED exactly once per connection
// instance. Safe to call repeatedly: it reacts to identity becoming
// available after the socket opened and no-ops otherwise.
func (m *Manager) AnnounceIdentity() {
	identity := m.store.Identity()
	if identity.ClientID == "" || identity.ClientName == "" {
		return
	}
	if m.store.SessionEnded() {
		return
	}

	m.mu.Lock()
	if !m.connected || m.announced || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.announced = true
	conn := m.conn
	m.mu.Unlock()

	err := m.write(conn, protocol.Message{
		Type:    protocol.CmdIdentityJoined,
		Payload: mustRaw(protocol.IdentityJoinedPayload{ClientID: identity.ClientID, ClientName: identity.ClientName}),
	})
	if err != nil {
		m.logger.Errorf("cannot announce identity: %v", err)
		m.mu.Lock()
		if m.conn == conn {
			m.announced = false
		}
		m.mu.Unlock()
	}
}

func (m *Manager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.handleMessage(gen, data)
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		// One bad frame must never take the connection down.
		m.logger.Errorf("dropping malformed realtime frame: %v", err)
		return
	}

	fx, err := m.store.Apply(msg)
	if err != nil {
		m.logger.Errorf("dropping %s message: %v", msg.Type, err)
		return
	}
	m.runner.Run(fx)
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation {
		// Intentional teardown or a newer attempt; nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	m.announced = false
	token := m.token
	m.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		m.logger.Info("realtime closed", "table_token", token)
		return
	}

	if m.store.SessionEnded() {
		m.logger.Info("realtime lost after session end, staying offline")
		return
	}

	m.mu.Lock()
	m.lastError = "connection lost"
	m.mu.Unlock()
	m.logger.Errorf("realtime connection lost: %v", err)
	m.scheduleReconnect(gen)
}

// scheduleReconnect arms exactly one reconnect attempt for the given
// generation. The timer callback re-validates the generation so teardown or
// a newer Connect silently disarms it.
func (m *Manager) scheduleReconnect(gen uint64) {
	if m.store.SessionEnded() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.reconnectTimer != nil {
		return
	}
	token := m.token
	m.reconnectTimer = time.AfterFunc(reconnectDelay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		stale := gen != m.generation
		m.mu.Unlock()
		if stale {
			return
		}
		m.logger.Info("reconnecting", "table_token", token)
		m.Connect(token)
	})
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// Close tears the connection down intentionally: the generation is
// invalidated so in-flight callbacks become no-ops, pending reconnects are
// cancelled and the socket closes with a normal closure code.
func (m *Manager) Close() {
	m.mu.Lock()
	m.generation++
	m.cancelReconnectLocked()
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.announced = false
	m.mu.Unlock()

	if conn != nil {
		closeNormally(conn)
	}
}

// Connected reports whether a live connection is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// LastError returns the user-visible connection error, empty when healthy.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

func (m *Manager) write(conn *websocket.Conn, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", msg.Type, err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeNormally(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.Close()
}

func mustRaw(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
