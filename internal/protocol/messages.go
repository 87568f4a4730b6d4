package protocol

import "encoding/json"

// Inbound message types broadcast by the venue server on the per-table
// realtime channel.
const (
	MsgInitialState          = "INITIAL_STATE"
	MsgParticipantJoined     = "PARTICIPANT_JOINED"
	MsgParticipantLeft       = "PARTICIPANT_LEFT"
	MsgItemAdded             = "ITEM_ADDED"
	MsgItemRemoved           = "ITEM_REMOVED"
	MsgQuantityUpdated       = "QUANTITY_UPDATED"
	MsgOrderUpdated          = "ORDER_UPDATED"
	MsgOrderConfirmed        = "ORDER_CONFIRMED"
	MsgOrderClosed           = "ORDER_CLOSED"
	MsgTableReset            = "TABLE_RESET"
	MsgOrderPaid             = "ORDER_PAID"
	MsgSubtotalsUpdated      = "SUBTOTALS_UPDATED"
	MsgConfirmationStarted   = "CONFIRMATION_STARTED"
	MsgConfirmationUpdated   = "CONFIRMATION_UPDATED"
	MsgConfirmationCancelled = "CONFIRMATION_CANCELLED"
	MsgError                 = "ERROR"
	MsgOrderNameAssigned     = "ORDER_NAME_ASSIGNED"
	MsgOrderReadyForPickup   = "ORDER_READY_FOR_PICKUP"
)

// Outbound command types sent by the client over the same channel.
const (
	CmdIdentityJoined = "IDENTITY_JOINED"
	CmdAddItem        = "ADD_ITEM"
	CmdUpdateQuantity = "UPDATE_QUANTITY"
	CmdRemoveItem     = "REMOVE_ITEM"
	CmdConfirmOrder   = "CONFIRM_ORDER"
	CmdCallStaff      = "CALL_STAFF"
	CmdCloseOrder     = "CLOSE_ORDER"
	CmdPayOrder       = "PAY_ORDER"
)

// StaffClientID marks server-side staff actions in broadcast payloads so
// clients can skip self/staff notification effects.
const StaffClientID = "staff"

// Message is the wire envelope for both directions. Payload stays raw until
// the type discriminator selects a payload shape.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OrderStatus is the server-authoritative lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusDelivered OrderStatus = "delivered"
	StatusServed    OrderStatus = "served"
	StatusClosed    OrderStatus = "closed"
)

// Valid reports whether the status is one the protocol defines. Unknown
// statuses from newer servers are kept as-is but callers may want to know.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusDelivered, StatusServed, StatusClosed:
		return true
	}
	return false
}

// OrderItem is one line of the shared order. The server owns every field;
// the client never edits items in place.
type OrderItem struct {
	ID                      int64    `json:"id"`
	ProductID               int64    `json:"productId"`
	ClientName              string   `json:"clientName"`
	Quantity                int      `json:"quantity"`
	UnitPrice               string   `json:"unitPrice"`
	ProductName             string   `json:"productName,omitempty"`
	ImageURL                string   `json:"imageUrl,omitempty"`
	ExcludedIngredientIDs   []int64  `json:"excludedIngredientIds,omitempty"`
	ExcludedIngredientNames []string `json:"excludedIngredientNames,omitempty"`
}

// OrderSnapshot is the client's cached copy of the server order state.
// Total is a decimal string reported by the server and is never recomputed
// from Items on this side.
type OrderSnapshot struct {
	Items  []OrderItem `json:"items"`
	Total  string      `json:"total"`
	Status OrderStatus `json:"status"`
}

// EmptySnapshot returns the zero order every fresh table starts from.
func EmptySnapshot() OrderSnapshot {
	return OrderSnapshot{Items: []OrderItem{}, Total: "0.00", Status: StatusPending}
}

// Participant is one diner currently joined to the table channel.
type Participant struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
}

// ParticipantConfirmation records one diner's vote inside a group
// confirmation round.
type ParticipantConfirmation struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Confirmed     bool   `json:"confirmed"`
}

// GroupConfirmation is the unanimous-consent flow state: every diner must
// confirm before the order goes to the kitchen.
type GroupConfirmation struct {
	Active          bool                      `json:"active"`
	InitiatedBy     string                    `json:"initiatedBy"`
	InitiatedByName string                    `json:"initiatedByName"`
	Confirmations   []ParticipantConfirmation `json:"confirmations"`
	Timestamp       int64                     `json:"timestamp"`
}

// PaidSubtotal is one participant's partial payment within a split bill.
type PaidSubtotal struct {
	ClientName string `json:"clientName"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
}

// ClosedOrder is the receipt snapshot kept after an order closes or is paid
// so the receipt view can render without the live channel.
type ClosedOrder struct {
	OrderID int64       `json:"orderId"`
	Items   []OrderItem `json:"items"`
	Total   string      `json:"total"`
}

// orderRef is the nested order object some payloads carry. Older servers
// emit it under the "pedido" key, newer ones under "order"; both appear in
// production traffic.
type orderRef struct {
	ID     int64       `json:"id"`
	Total  string      `json:"total"`
	Status OrderStatus `json:"status"`
	Name   string      `json:"name,omitempty"`
}

// initialStatePayload carries the full resync the server sends on every
// (re)join. The order id arrives as "orderId" or legacy "pedidoId".
type initialStatePayload struct {
	OrderID      *int64        `json:"orderId"`
	PedidoID     *int64        `json:"pedidoId"`
	Status       OrderStatus   `json:"status"`
	Items        []OrderItem   `json:"items"`
	Total        string        `json:"total"`
	Participants []Participant `json:"participants"`
	OrderName    string        `json:"orderName,omitempty"`
}

func (p *initialStatePayload) orderID() int64 {
	if p.OrderID != nil {
		return *p.OrderID
	}
	if p.PedidoID != nil {
		return *p.PedidoID
	}
	return 0
}

type participantsPayload struct {
	Participants []Participant `json:"participants"`
}

// itemsPatchPayload is the defensive-merge shape used by ITEM_ADDED,
// ITEM_REMOVED and QUANTITY_UPDATED: items and total are only applied when
// the server actually sent them, and always together when both are present.
type itemsPatchPayload struct {
	Items []OrderItem `json:"items"`
	Total *string     `json:"total"`
}

type orderUpdatedPayload struct {
	Items       []OrderItem `json:"items"`
	Total       string      `json:"total"`
	Pedido      *orderRef   `json:"pedido"`
	Order       *orderRef   `json:"order"`
	AddedBy     string      `json:"addedBy,omitempty"`
	AddedByName string      `json:"addedByName,omitempty"`
	ProductName string      `json:"productName,omitempty"`
}

func (p *orderUpdatedPayload) ref() *orderRef {
	if p.Pedido != nil {
		return p.Pedido
	}
	return p.Order
}

type orderPaidPayload struct {
	Items   []OrderItem `json:"items"`
	Total   string      `json:"total"`
	OrderID *int64      `json:"orderId"`
	Method  string      `json:"metodo"`
	Pedido  *orderRef   `json:"pedido"`
	Order   *orderRef   `json:"order"`
}

func (p *orderPaidPayload) ref() *orderRef {
	if p.Pedido != nil {
		return p.Pedido
	}
	return p.Order
}

type tableResetPayload struct {
	OrderID  *int64 `json:"orderId"`
	PedidoID *int64 `json:"pedidoId"`
}

func (p *tableResetPayload) orderID() int64 {
	if p.OrderID != nil {
		return *p.OrderID
	}
	if p.PedidoID != nil {
		return *p.PedidoID
	}
	return 0
}

type subtotalsPayload struct {
	Subtotals []PaidSubtotal `json:"subtotals"`
}

type confirmationCancelledPayload struct {
	CancelledBy     string `json:"cancelledBy"`
	CancelledByName string `json:"cancelledByName"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type orderNamePayload struct {
	Name string `json:"name"`
}

// Outbound command payloads.

// IdentityJoinedPayload announces who this connection belongs to. Sent once
// per connection instance, immediately after the socket opens and identity
// is known.
type IdentityJoinedPayload struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
}

// AddItemPayload asks the server to append a product to the shared order.
type AddItemPayload struct {
	ProductID             int64   `json:"productId"`
	ClientName            string  `json:"clientName"`
	Quantity              int     `json:"quantity"`
	UnitPrice             string  `json:"unitPrice"`
	ExcludedIngredientIDs []int64 `json:"excludedIngredientIds,omitempty"`
}

// UpdateQuantityPayload changes the quantity of one order item.
type UpdateQuantityPayload struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

// RemoveItemPayload deletes one order item.
type RemoveItemPayload struct {
	ItemID int64 `json:"itemId"`
}

// PayOrderPayload settles the order with the chosen payment method.
type PayOrderPayload struct {
	Method string `json:"metodo"`
}

// CallStaffPayload requests attention at the table.
type CallStaffPayload struct {
	ClientName string `json:"clientName"`
	Reason     string `json:"reason,omitempty"`
}
