package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/storage"
)

func newFileStore(t *testing.T) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	return fs
}

func rawMsg(t *testing.T, msgType string, payload interface{}) protocol.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("cannot marshal payload: %v", err)
	}
	return protocol.Message{Type: msgType, Payload: raw}
}

func TestNewStore(t *testing.T) {
	store := NewStore(nil, nil)
	if store == nil {
		t.Fatal("NewStore() returned nil")
	}
	if store.Hydrated() {
		t.Error("store should not be hydrated before StartHydration")
	}
	if store.Snapshot().Total != "0.00" {
		t.Errorf("initial total = %q, want 0.00", store.Snapshot().Total)
	}
}

func TestHydrationWithoutStorage(t *testing.T) {
	store := NewStore(nil, nil)
	store.StartHydration()

	select {
	case <-store.HydrationDone():
	case <-time.After(time.Second):
		t.Fatal("hydration never completed")
	}
	if !store.Hydrated() {
		t.Error("Hydrated() should be true after hydration")
	}
}

func TestHydrationRestoresDurableSubsetOnly(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	first := NewStore(fs, nil)
	first.Hydrate()
	first.SetIdentity("c1", "Ana")
	first.SetTableToken("mesa-42")
	first.SetOrderID(7)
	if _, err := first.Apply(rawMsg(t, protocol.MsgSubtotalsUpdated, map[string]interface{}{
		"subtotals": []protocol.PaidSubtotal{{ClientName: "Ana", Amount: "5.00"}},
	})); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if _, err := first.Apply(rawMsg(t, protocol.MsgOrderReadyForPickup, struct{}{})); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	first.EndSession()

	// A second store over the same directory simulates a page reload.
	reloaded := NewStore(fs, nil)
	reloaded.Hydrate()

	identity := reloaded.Identity()
	if identity.ClientID != "c1" || identity.ClientName != "Ana" || identity.TableToken != "mesa-42" {
		t.Errorf("identity = %+v, want restored", identity)
	}
	if reloaded.OrderID() != 7 {
		t.Errorf("OrderID = %d, want 7", reloaded.OrderID())
	}

	state := reloaded.Realtime()
	if len(state.PaidSubtotals) != 0 {
		t.Error("paid subtotals must not survive a reload")
	}
	if state.OrderReady {
		t.Error("order-ready must not survive a reload")
	}
	if state.SessionEnded {
		t.Error("session-ended must not survive a reload")
	}
}

func TestSetTableTokenClearsCrossTableState(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.SetTableToken("mesa-1")
	store.EndSession()
	if _, err := store.Apply(rawMsg(t, protocol.MsgSubtotalsUpdated, map[string]interface{}{
		"subtotals": []protocol.PaidSubtotal{{ClientName: "Ana", Amount: "5.00"}},
	})); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	store.SetTableToken("mesa-2")

	state := store.Realtime()
	if state.SessionEnded {
		t.Error("token change should clear session-ended")
	}
	if len(state.PaidSubtotals) != 0 {
		t.Error("token change should clear paid subtotals")
	}
	if state.ClosedOrder != nil {
		t.Error("token change should clear the closed-order snapshot")
	}
}

func TestSetTableTokenSameTokenNoop(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.SetTableToken("mesa-1")
	store.EndSession()

	store.SetTableToken("mesa-1")
	if !store.SessionEnded() {
		t.Error("same token must not clear session state")
	}
}

func TestSetOrderIDNewEpoch(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.SetOrderID(5)
	store.EndSession()

	store.SetOrderID(6)

	if store.SessionEnded() {
		t.Error("new order id should clear session-ended")
	}
	if store.OrderID() != 6 {
		t.Errorf("OrderID = %d, want 6", store.OrderID())
	}
}

func TestApplyConsumesCartClearEffect(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.AddCartItem(CartItem{ProductID: 1, ProductName: "Margherita", Quantity: 2, UnitPrice: "9.50"})

	effects, err := store.Apply(rawMsg(t, protocol.MsgOrderUpdated, map[string]interface{}{
		"items":  []protocol.OrderItem{{ID: 1, ProductID: 1, Quantity: 2, UnitPrice: "9.50"}},
		"pedido": map[string]interface{}{"total": "19.00", "status": "pending"},
	}))
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(store.CartItems()) != 0 {
		t.Error("local cart should be cleared when the server order takes over")
	}
	for _, e := range effects {
		if e.Kind == protocol.EffectClearLocalCart {
			t.Error("clear-cart effect should be consumed by the store, not propagated")
		}
	}
	if store.Snapshot().Total != "19.00" {
		t.Errorf("total = %q, want 19.00", store.Snapshot().Total)
	}
}

func TestIdentityOverwriteIgnored(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.SetIdentity("c1", "Ana")

	store.SetIdentity("c2", "Eve")

	identity := store.Identity()
	if identity.ClientID != "c1" || identity.ClientName != "Ana" {
		t.Errorf("identity = %+v, want original kept", identity)
	}
}

func TestReset(t *testing.T) {
	fs := newFileStore(t)
	store := NewStore(fs, nil)
	store.Hydrate()
	store.SetIdentity("c1", "Ana")
	store.SetTableToken("mesa-1")
	store.SetOrderID(7)
	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50"})

	store.Reset()

	if store.Identity() != (Identity{}) {
		t.Errorf("identity = %+v, want zero", store.Identity())
	}
	if store.OrderID() != 0 {
		t.Errorf("OrderID = %d, want 0", store.OrderID())
	}
	if len(store.CartItems()) != 0 {
		t.Error("cart should be empty after reset")
	}

	// The persisted records are overwritten, not left stale.
	reloaded := NewStore(fs, nil)
	reloaded.Hydrate()
	if reloaded.Identity() != (Identity{}) {
		t.Errorf("persisted identity = %+v, want zero after reset", reloaded.Identity())
	}
	if len(reloaded.CartItems()) != 0 {
		t.Error("persisted cart should be empty after reset")
	}
}

func TestBootstrapStoresMetadata(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()

	store.SetBootstrap(
		&TableInfo{ID: 1, Number: 4, Token: "mesa-4"},
		&Restaurant{ID: 2, Name: "Cantina"},
		[]Product{{ID: 1, Name: "Margherita", Price: "9.50"}},
	)

	if store.Table() == nil || store.Table().Number != 4 {
		t.Errorf("table = %+v", store.Table())
	}
	if store.Restaurant() == nil || store.Restaurant().Name != "Cantina" {
		t.Errorf("restaurant = %+v", store.Restaurant())
	}
	if len(store.Catalog()) != 1 {
		t.Errorf("catalog = %d products, want 1", len(store.Catalog()))
	}
	if store.Identity().TableToken != "mesa-4" {
		t.Errorf("table token = %q, want mesa-4", store.Identity().TableToken)
	}
}
