package guard

import (
	"sync"

	aqm "github.com/aquamarinepk/aqm/log"

	"github.com/appetiteclub/tableside/internal/effects"
	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/session"
)

// Guard redirects away from pages whose whitelist of order statuses no
// longer matches the live snapshot. It only acts once the store is hydrated
// and while the session has not ended, and it remembers the last
// (route, status) pair it redirected for so it cannot loop.
type Guard struct {
	store     *session.Store
	navigator effects.Navigator
	logger    aqm.Logger

	mu         sync.Mutex
	disabled   bool
	suppressed func() bool
	lastRoute  string
	lastStatus protocol.OrderStatus
	lastSet    bool
}

// New wires a guard. navigator is required for redirects; logger nil falls
// back to noop.
func New(store *session.Store, navigator effects.Navigator, logger aqm.Logger) *Guard {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Guard{store: store, navigator: navigator, logger: logger}
}

// SetDisabled turns the guard off entirely; terminal pages (receipt) use
// this so nothing navigates away from them.
func (g *Guard) SetDisabled(disabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disabled = disabled
}

// SetSuppression installs a predicate consulted before every evaluation.
// Presentation layers return true while a modal or drawer is open to hold
// guard-driven navigation during transient UI states.
func (g *Guard) SetSuppression(predicate func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suppressed = predicate
}

// Evaluate checks the current route against its allowed statuses and
// redirects to fallback when the live status is not among them. Reports
// whether a redirect was issued.
func (g *Guard) Evaluate(route string, allowed []protocol.OrderStatus, fallback string) bool {
	if !g.store.Hydrated() {
		return false
	}
	if g.store.SessionEnded() {
		return false
	}

	g.mu.Lock()
	if g.disabled || (g.suppressed != nil && g.suppressed()) {
		g.mu.Unlock()
		return false
	}
	g.mu.Unlock()

	status := g.store.Snapshot().Status
	for _, s := range allowed {
		if s == status {
			g.mu.Lock()
			g.lastSet = false
			g.mu.Unlock()
			return false
		}
	}

	g.mu.Lock()
	if g.lastSet && g.lastRoute == route && g.lastStatus == status {
		// Already redirected for this exact pair; wait for it to change.
		g.mu.Unlock()
		return false
	}
	g.lastRoute = route
	g.lastStatus = status
	g.lastSet = true
	g.mu.Unlock()

	g.logger.Info("guard redirect", "route", route, "status", string(status), "to", fallback)
	if g.navigator != nil {
		g.navigator.Navigate(fallback)
	}
	return true
}

// AllowBack decides whether back-navigation may leave the route. During
// critical flows (an active group confirmation, or an order already in the
// kitchen while on the status page) back is intercepted and the caller
// should stay put.
func (g *Guard) AllowBack(route string) bool {
	if !g.store.Hydrated() || g.store.SessionEnded() {
		return true
	}

	state := g.store.Realtime()
	if state.Confirmation != nil && state.Confirmation.Active {
		g.logger.Debug("back blocked: confirmation in progress", "route", route)
		return false
	}
	if route == RouteOrderStatus {
		switch state.Snapshot.Status {
		case protocol.StatusPreparing, protocol.StatusDelivered:
			g.logger.Debug("back blocked: order in progress", "route", route)
			return false
		}
	}
	return true
}

// Well-known client routes the guard and the reducer navigate between.
const (
	RouteMenu        = "/menu"
	RouteCart        = "/cart"
	RouteOrderStatus = "/order-status"
	RouteReceipt     = "/receipt"
)
