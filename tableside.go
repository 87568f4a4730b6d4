// Package tableside is the customer-facing client SDK for the Appetite
// table-ordering realtime protocol: bootstrap join, the persistent session
// store, the realtime connection and the route guard, composed behind one
// facade.
package tableside

import (
	"context"
	"fmt"

	aqm "github.com/aquamarinepk/aqm/log"
	"github.com/google/uuid"

	"github.com/appetiteclub/tableside/internal/bootstrap"
	"github.com/appetiteclub/tableside/internal/effects"
	"github.com/appetiteclub/tableside/internal/guard"
	"github.com/appetiteclub/tableside/internal/realtime"
	"github.com/appetiteclub/tableside/internal/session"
	"github.com/appetiteclub/tableside/internal/storage"
)

// Production endpoint fallbacks, overridable through configuration.
const (
	DefaultAPIBase      = "https://api.appetite.club"
	DefaultRealtimeBase = "wss://rt.appetite.club"
)

// Config carries everything a Client needs. Zero values fall back to the
// production endpoints, in-memory persistence and a noop logger.
type Config struct {
	APIBase      string
	RealtimeBase string
	// DataDir is where session and cart records persist. Empty disables
	// persistence.
	DataDir   string
	Notifier  effects.Notifier
	Navigator effects.Navigator
	Logger    aqm.Logger
}

// Client composes the SDK: the store is the single source of truth, the
// realtime manager keeps it synchronized, the guard derives navigation.
type Client struct {
	Store    *session.Store
	Realtime *realtime.Manager
	Guard    *guard.Guard

	bootstrap *bootstrap.Client
	logger    aqm.Logger
}

// New builds a Client from config and starts hydration in the background.
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.RealtimeBase == "" {
		cfg.RealtimeBase = DefaultRealtimeBase
	}

	var files *storage.FileStore
	if cfg.DataDir != "" {
		var err error
		files, err = storage.NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("cannot open storage: %w", err)
		}
	}

	store := session.NewStore(files, logger)
	runner := effects.NewRunner(cfg.Notifier, cfg.Navigator, logger)
	manager := realtime.NewManager(cfg.RealtimeBase, store, runner, logger)

	client := &Client{
		Store:     store,
		Realtime:  manager,
		Guard:     guard.New(store, cfg.Navigator, logger),
		bootstrap: bootstrap.NewClient(cfg.APIBase),
		logger:    logger,
	}
	store.StartHydration()
	return client, nil
}

// JoinTable performs the bootstrap REST join for a table token, stores the
// returned metadata and order, and connects the realtime channel. The
// returned *bootstrap.APIError lets callers branch on HTTP status.
func (c *Client) JoinTable(ctx context.Context, token string) (*bootstrap.JoinResponse, error) {
	resp, err := c.bootstrap.JoinTable(ctx, token)
	if err != nil {
		return nil, err
	}

	c.Store.SetTableToken(token)
	c.Store.SetBootstrap(&resp.Table, &resp.Restaurant, resp.Catalog)
	if resp.OrderID != 0 {
		c.Store.SetOrderID(resp.OrderID)
	}

	c.Realtime.Connect(token)
	return resp, nil
}

// EnterName records the diner's identity, minting a client id on first use,
// and announces it on the live connection if one is open.
func (c *Client) EnterName(name string) {
	identity := c.Store.Identity()
	clientID := identity.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	c.Store.SetIdentity(clientID, name)
	c.Realtime.AnnounceIdentity()
}

// Close tears down the realtime connection. The store stays usable so
// receipt pages can still read persisted state.
func (c *Client) Close() {
	c.Realtime.Close()
}
