package session

import (
	"sync"
	"time"

	aqm "github.com/aquamarinepk/aqm/log"

	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/storage"
)

const (
	sessionRecord = "session"
	cartRecord    = "cart"

	// hydrationFallback bounds how long consumers wait for storage before
	// the store declares itself hydrated anyway.
	hydrationFallback = 100 * time.Millisecond
)

// Identity is who this browser-equivalent session is. Created once when the
// diner enters their name and immutable until a full reset.
type Identity struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	TableToken string `json:"table_token"`
}

// TableInfo is the table metadata returned by the bootstrap join.
type TableInfo struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Token  string `json:"token"`
}

// Restaurant is the venue metadata returned by the bootstrap join.
type Restaurant struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url,omitempty"`
}

// Ingredient is one removable component of a product.
type Ingredient struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Removable bool   `json:"removable"`
}

// Product is one catalog entry.
type Product struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Price       string       `json:"price"`
	ImageURL    string       `json:"image_url,omitempty"`
	CategoryID  int64        `json:"category_id,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
}

// persistedSession is the strict subset of store fields that survives a
// restart. Payment state (paid subtotals, order-ready) and session-lifetime
// flags are deliberately absent: a reloaded client must never resume a
// half-finished payment flow.
type persistedSession struct {
	Identity    Identity               `json:"identity"`
	OrderID     int64                  `json:"order_id"`
	OrderName   string                 `json:"order_name,omitempty"`
	Table       *TableInfo             `json:"table,omitempty"`
	Restaurant  *Restaurant            `json:"restaurant,omitempty"`
	Catalog     []Product              `json:"catalog,omitempty"`
	Snapshot    protocol.OrderSnapshot `json:"snapshot"`
	ClosedOrder *protocol.ClosedOrder  `json:"closed_order,omitempty"`
}

// Store is the single source of truth for identity, table, catalog and
// realtime order state. All mutation goes through command methods; every
// durable mutation writes through to the file store.
type Store struct {
	mu     sync.RWMutex
	logger aqm.Logger
	files  *storage.FileStore

	identity   Identity
	table      *TableInfo
	restaurant *Restaurant
	catalog    []Product
	state      protocol.State
	cart       []CartItem

	hydrated    bool
	hydrateOnce sync.Once
	hydratedCh  chan struct{}
}

// NewStore builds a store persisting through files. files may be nil for an
// in-memory store (tests, kiosk mode); logger nil falls back to noop.
func NewStore(files *storage.FileStore, logger aqm.Logger) *Store {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Store{
		logger:     logger,
		files:      files,
		state:      protocol.NewState(),
		hydratedCh: make(chan struct{}),
	}
}

// StartHydration loads the persisted records in the background and marks
// the store hydrated. If storage never answers, a bounded fallback timer
// marks it hydrated anyway so identity-gated logic is not stuck forever.
// Hydrated transitions false to true exactly once per process.
func (s *Store) StartHydration() {
	fallback := time.AfterFunc(hydrationFallback, s.markHydrated)
	go func() {
		defer fallback.Stop()
		s.loadPersisted()
		s.markHydrated()
	}()
}

// Hydrate loads synchronously. Mostly for tests and CLI flows that have no
// event loop to wait on.
func (s *Store) Hydrate() {
	s.loadPersisted()
	s.markHydrated()
}

func (s *Store) markHydrated() {
	s.hydrateOnce.Do(func() {
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		close(s.hydratedCh)
	})
}

// Hydrated reports whether persisted state has been restored (or the
// fallback fired). Logic depending on restored identity must gate on this.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// HydrationDone is closed once the store is hydrated.
func (s *Store) HydrationDone() <-chan struct{} {
	return s.hydratedCh
}

func (s *Store) loadPersisted() {
	if s.files == nil {
		return
	}

	var rec persistedSession
	err := s.files.Load(sessionRecord, &rec)
	switch {
	case err == storage.ErrNotFound:
		// First run.
	case err != nil:
		s.logger.Errorf("cannot restore session record: %v", err)
	default:
		s.mu.Lock()
		s.identity = rec.Identity
		s.table = rec.Table
		s.restaurant = rec.Restaurant
		s.catalog = rec.Catalog
		s.state.OrderID = rec.OrderID
		s.state.OrderName = rec.OrderName
		s.state.Snapshot = rec.Snapshot
		if s.state.Snapshot.Items == nil {
			s.state.Snapshot = protocol.EmptySnapshot()
		}
		s.state.ClosedOrder = rec.ClosedOrder
		// Session-scoped fields are force-reset even if stale values were
		// ever written: paid subtotals, order-ready, session-ended,
		// confirmation state all start empty on every load.
		s.state.PaidSubtotals = nil
		s.state.OrderReady = false
		s.state.SessionEnded = false
		s.state.Confirmation = nil
		s.state.CancelledBy = ""
		s.state.ErrorMessage = ""
		s.state.Participants = nil
		s.mu.Unlock()
	}

	var cart []CartItem
	err = s.files.Load(cartRecord, &cart)
	switch {
	case err == storage.ErrNotFound:
	case err != nil:
		s.logger.Errorf("cannot restore cart record: %v", err)
	default:
		s.mu.Lock()
		s.cart = cart
		s.mu.Unlock()
	}
}

// persist writes the durable subset. Callers hold s.mu.
func (s *Store) persist() {
	if s.files == nil {
		return
	}
	rec := persistedSession{
		Identity:    s.identity,
		OrderID:     s.state.OrderID,
		OrderName:   s.state.OrderName,
		Table:       s.table,
		Restaurant:  s.restaurant,
		Catalog:     s.catalog,
		Snapshot:    s.state.Snapshot,
		ClosedOrder: s.state.ClosedOrder,
	}
	if err := s.files.Save(sessionRecord, rec); err != nil {
		s.logger.Errorf("cannot persist session record: %v", err)
	}
}

// SetIdentity records who the diner is. Identity is set once per session;
// repeated calls overwrite only when the client id matches or was empty.
func (s *Store) SetIdentity(clientID, clientName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.ClientID != "" && s.identity.ClientID != clientID {
		s.logger.Info("ignoring identity overwrite", "client_id", clientID)
		return
	}
	s.identity.ClientID = clientID
	s.identity.ClientName = clientName
	s.persist()
}

// Identity returns the current session identity.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetTableToken adopts a table token. A changed token means a different
// physical table: payment state, the closed-order snapshot and session
// lifetime flags from the previous table are cleared atomically.
func (s *Store) SetTableToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.TableToken == token {
		return
	}
	s.identity.TableToken = token
	s.state.PaidSubtotals = nil
	s.state.ClosedOrder = nil
	s.state.SessionEnded = false
	s.state.OrderReady = false
	s.persist()
}

// SetOrderID adopts an order id directly (bootstrap path). A changed id is
// a new order epoch: payment state scoped to the previous order is cleared.
// The closed-order snapshot survives, it belongs to the table.
func (s *Store) SetOrderID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.OrderID == id {
		return
	}
	s.state.OrderID = id
	s.state.PaidSubtotals = nil
	s.state.SessionEnded = false
	s.state.OrderReady = false
	s.persist()
}

// SetBootstrap stores the table, restaurant and catalog returned by the
// join call.
func (s *Store) SetBootstrap(table *TableInfo, restaurant *Restaurant, catalog []Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
	s.restaurant = restaurant
	s.catalog = catalog
	if table != nil && table.Token != "" {
		s.identity.TableToken = table.Token
	}
	s.persist()
}

// Table returns the stored table metadata, nil before bootstrap.
func (s *Store) Table() *TableInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Restaurant returns the stored venue metadata, nil before bootstrap.
func (s *Store) Restaurant() *Restaurant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restaurant
}

// Catalog returns the stored product catalog.
func (s *Store) Catalog() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Apply runs one inbound realtime message through the protocol reducer,
// persists the durable subset and returns the effects for the runner.
// The clear-local-cart effect is consumed here since the store owns the
// cart; it is not passed on.
func (s *Store) Apply(msg protocol.Message) ([]protocol.Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := protocol.Apply(&s.state, msg, s.identity.ClientID)
	if err != nil {
		return nil, err
	}
	s.persist()

	out := effects[:0]
	for _, e := range effects {
		if e.Kind == protocol.EffectClearLocalCart {
			s.clearCartLocked()
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Realtime returns a copy of the realtime state slice.
func (s *Store) Realtime() protocol.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.Confirmation != nil {
		c := *st.Confirmation
		st.Confirmation = &c
	}
	if st.ClosedOrder != nil {
		c := *st.ClosedOrder
		st.ClosedOrder = &c
	}
	return st
}

// Snapshot returns the current order snapshot.
func (s *Store) Snapshot() protocol.OrderSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot
}

// OrderID returns the current order epoch, zero when none.
func (s *Store) OrderID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.OrderID
}

// SessionEnded reports whether the session hit its terminal state.
func (s *Store) SessionEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SessionEnded
}

// EndSession marks the session terminally ended. Nothing reconnects after
// this; only a full reset or a new order epoch revives the client.
func (s *Store) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SessionEnded = true
}

// OrderReady reports the pickup-mode ready flag.
func (s *Store) OrderReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.OrderReady
}

// ClosedOrder returns the persisted receipt snapshot, nil when none.
func (s *Store) ClosedOrder() *protocol.ClosedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.ClosedOrder == nil {
		return nil
	}
	c := *s.state.ClosedOrder
	return &c
}

// ClearError drops the surfaced error message after the UI showed it.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ErrorMessage = ""
}

// Reset returns every field to its initial empty state and overwrites the
// persisted records so stale values cannot leak into the next session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{}
	s.table = nil
	s.restaurant = nil
	s.catalog = nil
	s.state = protocol.NewState()
	s.cart = nil
	s.persist()
	if s.files != nil {
		if err := s.files.Save(cartRecord, []CartItem{}); err != nil {
			s.logger.Errorf("cannot persist cart record: %v", err)
		}
	}
}
