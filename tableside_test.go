package tableside

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/session"
	"github.com/appetiteclub/tableside/internal/tablesim"
)

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

func newSim(t *testing.T) *httptest.Server {
	t.Helper()
	hub := tablesim.NewHub([]session.Product{
		{ID: 1, Name: "Margherita", Price: "9.50"},
		{ID: 2, Name: "Tiramisu", Price: "6.25"},
	}, nil, nil)
	srv := httptest.NewServer(tablesim.NewServer(hub, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, nav *recordingNavigator) *Client {
	t.Helper()
	client, err := New(Config{
		APIBase:      srv.URL,
		RealtimeBase: "ws" + strings.TrimPrefix(srv.URL, "http"),
		DataDir:      t.TempDir(),
		Navigator:    nav,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(client.Close)
	<-client.Store.HydrationDone()
	return client
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestJoinAndOrderEndToEnd(t *testing.T) {
	srv := newSim(t)
	nav := &recordingNavigator{}
	client := newClient(t, srv, nav)

	resp, err := client.JoinTable(context.Background(), "mesa-42")
	if err != nil {
		t.Fatalf("JoinTable() failed: %v", err)
	}
	if resp.Table.Token != "mesa-42" {
		t.Errorf("joined token = %q", resp.Table.Token)
	}
	if len(client.Store.Catalog()) != 2 {
		t.Errorf("catalog = %d products, want 2", len(client.Store.Catalog()))
	}

	client.EnterName("Ana")
	identity := client.Store.Identity()
	if identity.ClientID == "" || identity.ClientName != "Ana" {
		t.Fatalf("identity = %+v", identity)
	}

	waitUntil(t, client.Realtime.Connected)

	client.Realtime.AddItem(protocol.AddItemPayload{
		ProductID:  1,
		ClientName: "Ana",
		Quantity:   2,
	})
	waitUntil(t, func() bool { return len(client.Store.Snapshot().Items) == 1 })

	snapshot := client.Store.Snapshot()
	if snapshot.Items[0].ProductName != "Margherita" || snapshot.Total != "19.00" {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestPaymentEndsSessionAndNavigates(t *testing.T) {
	srv := newSim(t)
	nav := &recordingNavigator{}
	client := newClient(t, srv, nav)

	if _, err := client.JoinTable(context.Background(), "mesa-7"); err != nil {
		t.Fatalf("JoinTable() failed: %v", err)
	}
	client.EnterName("Ana")
	waitUntil(t, client.Realtime.Connected)

	client.Realtime.AddItem(protocol.AddItemPayload{ProductID: 2, ClientName: "Ana", Quantity: 1})
	waitUntil(t, func() bool { return len(client.Store.Snapshot().Items) == 1 })

	client.Realtime.PayOrder("efectivo")

	waitUntil(t, client.Store.SessionEnded)
	if got := nav.last(); got != "/receipt?method=efectivo" {
		t.Errorf("navigated to %q, want /receipt?method=efectivo", got)
	}
	if closed := client.Store.ClosedOrder(); closed == nil || len(closed.Items) != 1 {
		t.Errorf("closed order = %+v, want the receipt snapshot", closed)
	}
}

func TestIdentitySurvivesRestart(t *testing.T) {
	srv := newSim(t)
	dataDir := t.TempDir()

	first, err := New(Config{
		APIBase:      srv.URL,
		RealtimeBase: "ws" + strings.TrimPrefix(srv.URL, "http"),
		DataDir:      dataDir,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	<-first.Store.HydrationDone()
	if _, err := first.JoinTable(context.Background(), "mesa-1"); err != nil {
		t.Fatalf("JoinTable() failed: %v", err)
	}
	first.EnterName("Ana")
	mintedID := first.Store.Identity().ClientID
	first.Close()

	second, err := New(Config{
		APIBase:      srv.URL,
		RealtimeBase: "ws" + strings.TrimPrefix(srv.URL, "http"),
		DataDir:      dataDir,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer second.Close()
	<-second.Store.HydrationDone()

	identity := second.Store.Identity()
	if identity.ClientID != mintedID || identity.ClientName != "Ana" {
		t.Errorf("identity = %+v, want the persisted one", identity)
	}

	// EnterName after restart reuses the minted id instead of minting again.
	second.EnterName("Ana")
	if second.Store.Identity().ClientID != mintedID {
		t.Error("EnterName minted a new client id for an existing identity")
	}
}
