package tablesim

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	aqm "github.com/aquamarinepk/aqm/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/session"
)

// Hub holds the authoritative in-memory order state per table and fans
// broadcasts out to every connected diner, plus to NATS so sibling
// instances stay consistent. It is the development stand-in for the venue
// realtime service.
type Hub struct {
	logger     aqm.Logger
	publisher  Publisher
	instanceID string

	mu      sync.Mutex
	tables  map[string]*tableRoom
	catalog []session.Product
	nextOrd int64
}

type tableRoom struct {
	token string
	order protocol.OrderSnapshot
	ordID int64
	seq   int64

	conns map[*websocket.Conn]*diner
}

type diner struct {
	clientID   string
	clientName string
	writeMu    sync.Mutex
}

// NewHub builds a hub. publisher may be nil for single-instance runs.
func NewHub(catalog []session.Product, publisher Publisher, logger aqm.Logger) *Hub {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Hub{
		logger:     logger,
		publisher:  publisher,
		instanceID: uuid.NewString(),
		tables:     make(map[string]*tableRoom),
		catalog:    catalog,
	}
}

// StartFanout subscribes to sibling-instance broadcasts.
func (h *Hub) StartFanout(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return fmt.Errorf("fanout subscriber not configured")
	}
	return sub.Subscribe(ctx, h.handleFanout)
}

func (h *Hub) handleFanout(ctx context.Context, env Envelope) error {
	if env.Instance == h.instanceID {
		return nil
	}
	h.mu.Lock()
	room, ok := h.tables[env.Token]
	if !ok {
		// First sight of a table served elsewhere: adopt the sibling's
		// state instead of minting a fresh epoch on the next local join.
		room = &tableRoom{
			token: env.Token,
			order: protocol.EmptySnapshot(),
			conns: make(map[*websocket.Conn]*diner),
		}
		h.tables[env.Token] = room
	}
	h.applyBroadcastLocked(room, env.Message)
	h.deliverLocked(room, env.Message)
	h.mu.Unlock()
	return nil
}

// applyBroadcastLocked folds a sibling broadcast into this instance's
// authoritative room state so joins and commands here see the same order a
// sibling built. The client reducer already encodes the protocol
// transitions, so the room state advances through the same code path.
func (h *Hub) applyBroadcastLocked(room *tableRoom, msg protocol.Message) {
	st := protocol.State{OrderID: room.ordID, Snapshot: room.order}
	if _, err := protocol.Apply(&st, msg, protocol.StaffClientID); err != nil {
		h.logger.Errorf("cannot apply sibling %s: %v", msg.Type, err)
		return
	}
	room.ordID = st.OrderID
	room.order = st.Snapshot
	// Keep the item id sequence ahead of anything a sibling minted so a
	// locally added item never collides.
	for _, item := range st.Snapshot.Items {
		if item.ID > room.seq {
			room.seq = item.ID
		}
	}
}

// Catalog returns the menu served to joining clients.
func (h *Hub) Catalog() []session.Product {
	return h.catalog
}

func (h *Hub) room(token string) *tableRoom {
	room, ok := h.tables[token]
	if !ok {
		h.nextOrd++
		room = &tableRoom{
			token: token,
			order: protocol.EmptySnapshot(),
			ordID: h.nextOrd,
			conns: make(map[*websocket.Conn]*diner),
		}
		h.tables[token] = room
	}
	return room
}

// OrderState returns the current order id and snapshot for a table,
// creating the table on first sight. The bootstrap join endpoint uses this.
func (h *Hub) OrderState(token string) (int64, protocol.OrderSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.room(token)
	return room.ordID, room.order
}

// Join registers a connection on a table and sends it INITIAL_STATE.
func (h *Hub) Join(token string, conn *websocket.Conn) {
	h.mu.Lock()
	room := h.room(token)
	d := &diner{}
	room.conns[conn] = d
	msg := initialStateMessage(room)
	h.mu.Unlock()

	h.send(d, conn, msg)
	h.logger.Info("diner connected", "table_token", token)
}

// Leave drops a connection and broadcasts the shrunken roster. A room whose
// last diner left with nothing on the order is pruned; one with an open
// order stays so a reconnecting diner finds it again.
func (h *Hub) Leave(token string, conn *websocket.Conn) {
	h.mu.Lock()
	room, ok := h.tables[token]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(room.conns, conn)
	if len(room.conns) == 0 && len(room.order.Items) == 0 {
		delete(h.tables, token)
		h.mu.Unlock()
		return
	}
	msg := rosterMessage(protocol.MsgParticipantLeft, room)
	h.mu.Unlock()

	h.Broadcast(token, msg)
}

// Handle processes one client command.
func (h *Hub) Handle(token string, conn *websocket.Conn, raw []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Errorf("dropping malformed command: %v", err)
		return
	}

	switch msg.Type {
	case protocol.CmdIdentityJoined:
		h.handleIdentity(token, conn, msg.Payload)
	case protocol.CmdAddItem:
		h.handleAddItem(token, conn, msg.Payload)
	case protocol.CmdUpdateQuantity:
		h.handleUpdateQuantity(token, msg.Payload)
	case protocol.CmdRemoveItem:
		h.handleRemoveItem(token, msg.Payload)
	case protocol.CmdConfirmOrder:
		h.handleConfirmOrder(token)
	case protocol.CmdCallStaff:
		h.logger.Info("staff called", "table_token", token)
	case protocol.CmdCloseOrder:
		h.handleCloseOrder(token)
	case protocol.CmdPayOrder:
		h.handlePayOrder(token, msg.Payload)
	default:
		h.logger.Debug("ignoring unknown command", "type", msg.Type)
	}
}

func (h *Hub) handleIdentity(token string, conn *websocket.Conn, raw json.RawMessage) {
	var p protocol.IdentityJoinedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Errorf("invalid identity payload: %v", err)
		return
	}

	h.mu.Lock()
	room := h.room(token)
	if d, ok := room.conns[conn]; ok {
		d.clientID = p.ClientID
		d.clientName = p.ClientName
	}
	msg := rosterMessage(protocol.MsgParticipantJoined, room)
	h.mu.Unlock()

	h.Broadcast(token, msg)
}

func (h *Hub) handleAddItem(token string, conn *websocket.Conn, raw json.RawMessage) {
	var p protocol.AddItemPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Errorf("invalid add item payload: %v", err)
		return
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}

	h.mu.Lock()
	room := h.room(token)
	room.seq++
	item := protocol.OrderItem{
		ID:                    room.seq,
		ProductID:             p.ProductID,
		ClientName:            p.ClientName,
		Quantity:              p.Quantity,
		UnitPrice:             p.UnitPrice,
		ExcludedIngredientIDs: p.ExcludedIngredientIDs,
	}
	if product := h.findProduct(p.ProductID); product != nil {
		item.ProductName = product.Name
		item.ImageURL = product.ImageURL
		if item.UnitPrice == "" {
			item.UnitPrice = product.Price
		}
	}
	room.order.Items = append(room.order.Items, item)
	room.order.Total = orderTotal(room.order.Items)

	var addedBy, addedByName string
	if d, ok := room.conns[conn]; ok {
		addedBy = d.clientID
		addedByName = d.clientName
	}
	payload := mustMarshal(map[string]interface{}{
		"items": room.order.Items,
		"pedido": map[string]interface{}{
			"id":     room.ordID,
			"total":  room.order.Total,
			"status": room.order.Status,
		},
		"addedBy":     addedBy,
		"addedByName": addedByName,
		"productName": item.ProductName,
	})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgOrderUpdated, Payload: payload})
}

func (h *Hub) handleUpdateQuantity(token string, raw json.RawMessage) {
	var p protocol.UpdateQuantityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Errorf("invalid quantity payload: %v", err)
		return
	}

	h.mu.Lock()
	room := h.room(token)
	for i := range room.order.Items {
		if room.order.Items[i].ID == p.ItemID {
			if p.Quantity <= 0 {
				room.order.Items = append(room.order.Items[:i], room.order.Items[i+1:]...)
			} else {
				room.order.Items[i].Quantity = p.Quantity
			}
			break
		}
	}
	room.order.Total = orderTotal(room.order.Items)
	payload := mustMarshal(map[string]interface{}{
		"items": room.order.Items,
		"total": room.order.Total,
	})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgQuantityUpdated, Payload: payload})
}

func (h *Hub) handleRemoveItem(token string, raw json.RawMessage) {
	var p protocol.RemoveItemPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Errorf("invalid remove payload: %v", err)
		return
	}

	h.mu.Lock()
	room := h.room(token)
	for i := range room.order.Items {
		if room.order.Items[i].ID == p.ItemID {
			room.order.Items = append(room.order.Items[:i], room.order.Items[i+1:]...)
			break
		}
	}
	room.order.Total = orderTotal(room.order.Items)
	payload := mustMarshal(map[string]interface{}{
		"items": room.order.Items,
		"total": room.order.Total,
	})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgItemRemoved, Payload: payload})
}

func (h *Hub) handleConfirmOrder(token string) {
	h.mu.Lock()
	room := h.room(token)
	room.order.Status = protocol.StatusPreparing
	payload := mustMarshal(map[string]interface{}{
		"items": room.order.Items,
		"pedido": map[string]interface{}{
			"id":    room.ordID,
			"total": room.order.Total,
		},
	})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgOrderConfirmed, Payload: payload})
}

func (h *Hub) handleCloseOrder(token string) {
	h.mu.Lock()
	room := h.room(token)
	room.order.Status = protocol.StatusClosed
	payload := mustMarshal(map[string]interface{}{
		"items": room.order.Items,
		"pedido": map[string]interface{}{
			"id":    room.ordID,
			"total": room.order.Total,
		},
	})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgOrderClosed, Payload: payload})
}

func (h *Hub) handlePayOrder(token string, raw json.RawMessage) {
	var p protocol.PayOrderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Errorf("invalid pay payload: %v", err)
		return
	}

	h.mu.Lock()
	room := h.room(token)
	paid := mustMarshal(map[string]interface{}{
		"metodo": p.Method,
		"items":  room.order.Items,
		"pedido": map[string]interface{}{
			"id":    room.ordID,
			"total": room.order.Total,
		},
	})
	// The table starts a fresh epoch once the bill is settled.
	h.nextOrd++
	room.ordID = h.nextOrd
	room.order = protocol.EmptySnapshot()
	room.seq = 0
	reset := mustMarshal(map[string]interface{}{"orderId": room.ordID})
	h.mu.Unlock()

	h.Broadcast(token, protocol.Message{Type: protocol.MsgOrderPaid, Payload: paid})
	h.Broadcast(token, protocol.Message{Type: protocol.MsgTableReset, Payload: reset})
}

// Broadcast delivers a message to every local connection on the table and
// mirrors it to NATS for sibling instances.
func (h *Hub) Broadcast(token string, msg protocol.Message) {
	h.mu.Lock()
	room, ok := h.tables[token]
	if ok {
		h.deliverLocked(room, msg)
	}
	h.mu.Unlock()

	if h.publisher == nil {
		return
	}
	env := Envelope{Instance: h.instanceID, Token: token, Message: msg}
	if err := h.publisher.Publish(context.Background(), env); err != nil {
		h.logger.Errorf("cannot publish fanout envelope: %v", err)
	}
}

func (h *Hub) deliverLocked(room *tableRoom, msg protocol.Message) {
	for conn, d := range room.conns {
		h.send(d, conn, msg)
	}
}

func (h *Hub) send(d *diner, conn *websocket.Conn, msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("cannot encode %s: %v", msg.Type, err)
		return
	}
	d.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	d.writeMu.Unlock()
	if err != nil {
		h.logger.Debug("write failed, connection going away", "error", err.Error())
	}
}

func (h *Hub) findProduct(id int64) *session.Product {
	for i := range h.catalog {
		if h.catalog[i].ID == id {
			return &h.catalog[i]
		}
	}
	return nil
}

func initialStateMessage(room *tableRoom) protocol.Message {
	payload := mustMarshal(map[string]interface{}{
		"orderId":      room.ordID,
		"status":       room.order.Status,
		"items":        room.order.Items,
		"total":        room.order.Total,
		"participants": roster(room),
	})
	return protocol.Message{Type: protocol.MsgInitialState, Payload: payload}
}

func rosterMessage(msgType string, room *tableRoom) protocol.Message {
	payload := mustMarshal(map[string]interface{}{"participants": roster(room)})
	return protocol.Message{Type: msgType, Payload: payload}
}

func roster(room *tableRoom) []protocol.Participant {
	participants := make([]protocol.Participant, 0, len(room.conns))
	for _, d := range room.conns {
		if d.clientID == "" {
			continue
		}
		participants = append(participants, protocol.Participant{ClientID: d.clientID, ClientName: d.clientName})
	}
	return participants
}

func orderTotal(items []protocol.OrderItem) string {
	var cents int64
	for _, item := range items {
		f, err := strconv.ParseFloat(item.UnitPrice, 64)
		if err != nil {
			continue
		}
		cents += int64(f*100+0.5) * int64(item.Quantity)
	}
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
