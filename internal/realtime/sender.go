package realtime

import (
	"github.com/appetiteclub/tableside/internal/protocol"
)

// Send transmits one client intent wrapped in the {type, payload} envelope.
// With no live connection the command is dropped with a logged diagnostic:
// sends never queue and never fail loudly, callers observe connection state
// instead.
func (m *Manager) Send(msgType string, payload interface{}) {
	m.mu.Lock()
	conn := m.conn
	open := m.connected
	m.mu.Unlock()

	if !open || conn == nil {
		m.logger.Errorf("dropping %s: no live connection", msgType)
		return
	}

	msg := protocol.Message{Type: msgType, Payload: mustRaw(payload)}
	if err := m.write(conn, msg); err != nil {
		m.logger.Errorf("cannot send %s: %v", msgType, err)
	}
}

// AddItem asks the server to append a product to the shared order.
func (m *Manager) AddItem(p protocol.AddItemPayload) {
	m.Send(protocol.CmdAddItem, p)
}

// UpdateQuantity changes the quantity of one order item.
func (m *Manager) UpdateQuantity(itemID int64, quantity int) {
	m.Send(protocol.CmdUpdateQuantity, protocol.UpdateQuantityPayload{ItemID: itemID, Quantity: quantity})
}

// RemoveItem deletes one order item from the shared order.
func (m *Manager) RemoveItem(itemID int64) {
	m.Send(protocol.CmdRemoveItem, protocol.RemoveItemPayload{ItemID: itemID})
}

// ConfirmOrder submits the shared order to the kitchen.
func (m *Manager) ConfirmOrder() {
	m.Send(protocol.CmdConfirmOrder, struct{}{})
}

// CallStaff requests attention at the table.
func (m *Manager) CallStaff(reason string) {
	identity := m.store.Identity()
	m.Send(protocol.CmdCallStaff, protocol.CallStaffPayload{ClientName: identity.ClientName, Reason: reason})
}

// CloseOrder requests the bill.
func (m *Manager) CloseOrder() {
	m.Send(protocol.CmdCloseOrder, struct{}{})
}

// PayOrder settles the order with the chosen payment method.
func (m *Manager) PayOrder(method string) {
	m.Send(protocol.CmdPayOrder, protocol.PayOrderPayload{Method: method})
}
