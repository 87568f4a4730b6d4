package protocol

import (
	"encoding/json"
	"fmt"
)

// EffectKind discriminates the side effects a state transition requests.
// The reducer never executes effects itself; it only describes them so the
// transition stays testable in isolation.
type EffectKind string

const (
	// EffectToast shows a transient notification to the diner.
	EffectToast EffectKind = "toast"
	// EffectCelebrate fires the celebratory animation for shared-order adds.
	EffectCelebrate EffectKind = "celebrate"
	// EffectNavigate redirects to Route.
	EffectNavigate EffectKind = "navigate"
	// EffectError surfaces a server-reported error message.
	EffectError EffectKind = "error"
	// EffectClearLocalCart drops the unsynced delivery cart: the server
	// order is now the source of truth.
	EffectClearLocalCart EffectKind = "clear_local_cart"
)

// Effect is one side effect requested by the reducer.
type Effect struct {
	Kind    EffectKind
	Message string
	Route   string
}

// ReceiptRoute is where ORDER_PAID navigates, parameterized by payment
// method.
func ReceiptRoute(method string) string {
	if method == "" {
		return "/receipt"
	}
	return fmt.Sprintf("/receipt?method=%s", method)
}

// State is the realtime slice of client state the reducer operates on. An
// OrderID of zero means no order epoch has been established yet.
type State struct {
	OrderID       int64              `json:"order_id"`
	OrderName     string             `json:"order_name,omitempty"`
	Snapshot      OrderSnapshot      `json:"snapshot"`
	Participants  []Participant      `json:"participants"`
	PaidSubtotals []PaidSubtotal     `json:"paid_subtotals"`
	Confirmation  *GroupConfirmation `json:"confirmation,omitempty"`
	CancelledBy   string             `json:"cancelled_by,omitempty"`
	ClosedOrder   *ClosedOrder       `json:"closed_order,omitempty"`
	SessionEnded  bool               `json:"session_ended"`
	OrderReady    bool               `json:"order_ready"`
	ErrorMessage  string             `json:"error_message,omitempty"`
}

// NewState returns the initial realtime state for a fresh table session.
func NewState() State {
	return State{Snapshot: EmptySnapshot()}
}

// beginEpoch adopts a new order id and clears everything scoped to the
// previous order's lifetime. Clears are idempotent so interleavings with
// direct store mutations converge.
func (s *State) beginEpoch(orderID int64) {
	s.OrderID = orderID
	s.PaidSubtotals = nil
	s.OrderReady = false
	s.SessionEnded = false
}

// Apply runs one inbound message through the dispatch table and mutates the
// state accordingly. selfID is the local client id, used to decide whether
// an ORDER_UPDATED was caused by someone else at the table. Unknown message
// types are ignored for forward compatibility; a malformed payload returns
// an error and leaves the state untouched.
func Apply(s *State, msg Message, selfID string) ([]Effect, error) {
	switch msg.Type {
	case MsgInitialState:
		return applyInitialState(s, msg.Payload)
	case MsgParticipantJoined, MsgParticipantLeft:
		var p participantsPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		s.Participants = p.Participants
		return nil, nil
	case MsgItemAdded, MsgItemRemoved, MsgQuantityUpdated:
		return applyItemsPatch(s, msg.Payload)
	case MsgOrderUpdated:
		return applyOrderUpdated(s, msg.Payload, selfID)
	case MsgOrderConfirmed:
		return applyOrderConfirmed(s, msg.Payload)
	case MsgOrderClosed:
		return applyOrderClosed(s, msg.Payload)
	case MsgTableReset:
		return applyTableReset(s, msg.Payload)
	case MsgOrderPaid:
		return applyOrderPaid(s, msg.Payload)
	case MsgSubtotalsUpdated:
		var p subtotalsPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		s.PaidSubtotals = p.Subtotals
		return nil, nil
	case MsgConfirmationStarted:
		var c GroupConfirmation
		if err := decode(msg.Payload, &c); err != nil {
			return nil, err
		}
		s.Confirmation = &c
		s.CancelledBy = ""
		return nil, nil
	case MsgConfirmationUpdated:
		var c GroupConfirmation
		if err := decode(msg.Payload, &c); err != nil {
			return nil, err
		}
		s.Confirmation = &c
		return nil, nil
	case MsgConfirmationCancelled:
		var p confirmationCancelledPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		s.Confirmation = nil
		if p.CancelledByName != "" {
			s.CancelledBy = p.CancelledByName
		} else {
			s.CancelledBy = p.CancelledBy
		}
		return nil, nil
	case MsgError:
		var p errorPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		s.ErrorMessage = p.Message
		return []Effect{{Kind: EffectError, Message: p.Message}}, nil
	case MsgOrderNameAssigned:
		var p orderNamePayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		if s.OrderID != 0 {
			s.OrderName = p.Name
		}
		return nil, nil
	case MsgOrderReadyForPickup:
		s.OrderReady = true
		return nil, nil
	}

	// Unknown type: newer server, nothing to do.
	return nil, nil
}

func applyInitialState(s *State, raw json.RawMessage) ([]Effect, error) {
	var p initialStatePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	incoming := p.orderID()
	if incoming != 0 && s.OrderID != 0 && incoming != s.OrderID {
		// New order epoch: payment and session-lifetime flags belong to
		// the previous order, not the table.
		s.beginEpoch(incoming)
	} else if incoming != 0 {
		s.OrderID = incoming
	}

	snapshot := OrderSnapshot{Items: p.Items, Total: p.Total, Status: p.Status}
	if snapshot.Items == nil {
		snapshot.Items = []OrderItem{}
	}
	if snapshot.Total == "" {
		snapshot.Total = "0.00"
	}
	if snapshot.Status == "" {
		snapshot.Status = StatusPending
	}
	s.Snapshot = snapshot
	s.Participants = p.Participants
	if p.OrderName != "" {
		s.OrderName = p.OrderName
	}
	return nil, nil
}

func applyItemsPatch(s *State, raw json.RawMessage) ([]Effect, error) {
	var p itemsPatchPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	// Defensive merge: keep prior values when the server omitted a field.
	if p.Items != nil {
		s.Snapshot.Items = p.Items
	}
	if p.Total != nil {
		s.Snapshot.Total = *p.Total
	}
	return nil, nil
}

func applyOrderUpdated(s *State, raw json.RawMessage, selfID string) ([]Effect, error) {
	var p orderUpdatedPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	if p.Items != nil {
		s.Snapshot.Items = p.Items
	} else {
		s.Snapshot.Items = []OrderItem{}
	}
	ref := p.ref()
	s.Snapshot.Total = "0.00"
	s.Snapshot.Status = StatusPending
	if ref != nil {
		if ref.Total != "" {
			s.Snapshot.Total = ref.Total
		}
		if ref.Status != "" {
			s.Snapshot.Status = ref.Status
		}
		if ref.ID != 0 && s.OrderID == 0 {
			s.OrderID = ref.ID
		}
	}

	effects := []Effect{{Kind: EffectClearLocalCart}}
	if p.AddedBy != "" && p.AddedBy != selfID && p.AddedBy != StaffClientID {
		name := p.AddedByName
		if name == "" {
			name = p.AddedBy
		}
		effects = append(effects,
			Effect{Kind: EffectCelebrate},
			Effect{Kind: EffectToast, Message: fmt.Sprintf("%s added %s", name, p.ProductName)},
		)
	}
	return effects, nil
}

func applyOrderConfirmed(s *State, raw json.RawMessage) ([]Effect, error) {
	var p orderUpdatedPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	if p.Items != nil {
		s.Snapshot.Items = p.Items
	}
	s.Snapshot.Total = "0.00"
	if ref := p.ref(); ref != nil && ref.Total != "" {
		s.Snapshot.Total = ref.Total
	}
	s.Snapshot.Status = StatusPreparing

	s.PaidSubtotals = nil
	s.OrderReady = false
	s.Confirmation = nil
	s.CancelledBy = ""
	// No navigation here: the status change re-renders whatever page is
	// watching the snapshot.
	return nil, nil
}

func applyOrderClosed(s *State, raw json.RawMessage) ([]Effect, error) {
	var p orderUpdatedPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	items := p.Items
	if items == nil {
		items = []OrderItem{}
	}
	// Total may arrive top-level or inside the nested order object; the
	// nested one wins when both are present.
	total := p.Total
	orderID := s.OrderID
	if ref := p.ref(); ref != nil {
		if ref.Total != "" {
			total = ref.Total
		}
		if ref.ID != 0 {
			orderID = ref.ID
		}
	}
	if total == "" {
		total = "0.00"
	}
	s.Snapshot = OrderSnapshot{Items: items, Total: total, Status: StatusClosed}
	s.PaidSubtotals = nil

	if len(items) > 0 && orderID != 0 {
		s.ClosedOrder = &ClosedOrder{OrderID: orderID, Items: items, Total: total}
	}
	return nil, nil
}

func applyTableReset(s *State, raw json.RawMessage) ([]Effect, error) {
	var p tableResetPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	s.ClosedOrder = nil
	s.OrderID = p.orderID()
	s.OrderName = ""
	s.Snapshot = EmptySnapshot()
	s.Participants = nil
	s.PaidSubtotals = nil
	s.Confirmation = nil
	s.CancelledBy = ""
	s.OrderReady = false
	// SessionEnded is deliberately left alone: an ended session only comes
	// back through the epoch change on the next INITIAL_STATE.
	return []Effect{{Kind: EffectClearLocalCart}}, nil
}

func applyOrderPaid(s *State, raw json.RawMessage) ([]Effect, error) {
	var p orderPaidPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	items := p.Items
	total := p.Total
	orderID := s.OrderID
	if p.OrderID != nil && *p.OrderID != 0 {
		orderID = *p.OrderID
	}
	if ref := p.ref(); ref != nil {
		if items == nil {
			items = s.Snapshot.Items
		}
		if ref.Total != "" {
			total = ref.Total
		}
		if ref.ID != 0 {
			orderID = ref.ID
		}
	}
	if items == nil {
		items = s.Snapshot.Items
	}
	if total == "" {
		total = s.Snapshot.Total
	}

	if len(items) > 0 && orderID != 0 {
		s.ClosedOrder = &ClosedOrder{OrderID: orderID, Items: items, Total: total}
	}
	s.SessionEnded = true

	return []Effect{{Kind: EffectNavigate, Route: ReceiptRoute(p.Method)}}, nil
}

func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
