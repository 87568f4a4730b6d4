package tablesim

import (
	"encoding/json"
	"net/http"

	aqm "github.com/aquamarinepk/aqm/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Server exposes the dev venue API: the bootstrap join endpoint and the
// per-table realtime WebSocket endpoint, addressed by table token.
type Server struct {
	hub      *Hub
	logger   aqm.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP surface over a hub.
func NewServer(hub *Hub, logger aqm.Logger) *Server {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Server{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Dev server: any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the chi routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/tables/{token}/join", s.handleJoin)
	r.Get("/tables/{token}/ws", s.handleWS)
	return r
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "table token required")
		return
	}

	orderID, order := s.hub.OrderState(token)
	response := map[string]interface{}{
		"table": map[string]interface{}{
			"id":     1,
			"number": 1,
			"token":  token,
		},
		"restaurant": map[string]interface{}{
			"id":   1,
			"name": "Tablesim Cantina",
		},
		"catalog": s.hub.Catalog(),
		"orderId": orderID,
		"order":   order,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("cannot encode join response: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "table token required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("upgrade failed: %v", err)
		return
	}

	s.hub.Join(token, conn)
	defer func() {
		s.hub.Leave(token, conn)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.Handle(token, conn, data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
