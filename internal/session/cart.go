package session

import (
	"fmt"
	"strconv"
)

// CartItem is one line of the unsynced local cart used by the delivery and
// takeaway flow. Unlike order items this side owns it entirely, including
// the locally computed subtotal.
type CartItem struct {
	ProductID               int64    `json:"product_id"`
	ProductName             string   `json:"product_name"`
	Quantity                int      `json:"quantity"`
	UnitPrice               string   `json:"unit_price"`
	ImageURL                string   `json:"image_url,omitempty"`
	ExcludedIngredientIDs   []int64  `json:"excluded_ingredient_ids,omitempty"`
	ExcludedIngredientNames []string `json:"excluded_ingredient_names,omitempty"`
}

// CartItems returns a copy of the local cart.
func (s *Store) CartItems() []CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]CartItem, len(s.cart))
	copy(items, s.cart)
	return items
}

// AddCartItem appends to the local cart, merging quantity when the same
// product with the same exclusions is already there.
func (s *Store) AddCartItem(item CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart {
		if s.cart[i].ProductID == item.ProductID && sameExclusions(s.cart[i].ExcludedIngredientIDs, item.ExcludedIngredientIDs) {
			s.cart[i].Quantity += item.Quantity
			s.persistCart()
			return
		}
	}
	s.cart = append(s.cart, item)
	s.persistCart()
}

// UpdateCartQuantity sets the quantity for a product; zero or negative
// removes the line.
func (s *Store) UpdateCartQuantity(productID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart {
		if s.cart[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
		} else {
			s.cart[i].Quantity = quantity
		}
		s.persistCart()
		return
	}
}

// RemoveCartItem drops a product from the local cart.
func (s *Store) RemoveCartItem(productID int64) {
	s.UpdateCartQuantity(productID, 0)
}

// CartSubtotal computes the local cart total as a decimal string. This is
// the one place the client does money math: the cart is unsynced by
// definition, so there is no server total to trust.
func (s *Store) CartSubtotal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cents int64
	for _, item := range s.cart {
		cents += priceCents(item.UnitPrice) * int64(item.Quantity)
	}
	return formatCents(cents)
}

// ClearCart empties the local cart, e.g. when the server order takes over.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCartLocked()
}

func (s *Store) clearCartLocked() {
	if len(s.cart) == 0 {
		return
	}
	s.cart = nil
	s.persistCart()
}

// persistCart writes the full cart record, no partial filtering. Callers
// hold s.mu.
func (s *Store) persistCart() {
	if s.files == nil {
		return
	}
	items := s.cart
	if items == nil {
		items = []CartItem{}
	}
	if err := s.files.Save(cartRecord, items); err != nil {
		s.logger.Errorf("cannot persist cart record: %v", err)
	}
}

func sameExclusions(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}

// priceCents parses a decimal price string into cents, tolerating plain
// integers. Unparseable prices count as zero rather than failing the whole
// subtotal.
func priceCents(price string) int64 {
	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
