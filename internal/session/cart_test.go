package session

import (
	"testing"
)

func TestAddCartItemMergesMatchingLines(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()

	store.AddCartItem(CartItem{ProductID: 1, ProductName: "Margherita", Quantity: 1, UnitPrice: "9.50"})
	store.AddCartItem(CartItem{ProductID: 1, ProductName: "Margherita", Quantity: 2, UnitPrice: "9.50"})

	items := store.CartItems()
	if len(items) != 1 {
		t.Fatalf("cart has %d lines, want 1", len(items))
	}
	if items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", items[0].Quantity)
	}
}

func TestAddCartItemKeepsDistinctExclusions(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()

	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50"})
	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50", ExcludedIngredientIDs: []int64{2}})

	if got := len(store.CartItems()); got != 2 {
		t.Fatalf("cart has %d lines, want 2 (different exclusions never merge)", got)
	}
}

func TestAddCartItemExclusionOrderIrrelevant(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()

	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50", ExcludedIngredientIDs: []int64{1, 2}})
	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50", ExcludedIngredientIDs: []int64{2, 1}})

	items := store.CartItems()
	if len(items) != 1 {
		t.Fatalf("cart has %d lines, want 1", len(items))
	}
	if items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", items[0].Quantity)
	}
}

func TestUpdateCartQuantity(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.AddCartItem(CartItem{ProductID: 1, Quantity: 2, UnitPrice: "9.50"})

	store.UpdateCartQuantity(1, 5)
	if got := store.CartItems()[0].Quantity; got != 5 {
		t.Errorf("quantity = %d, want 5", got)
	}

	store.UpdateCartQuantity(1, 0)
	if got := len(store.CartItems()); got != 0 {
		t.Errorf("cart has %d lines, want 0 after zero quantity", got)
	}
}

func TestRemoveCartItem(t *testing.T) {
	store := NewStore(nil, nil)
	store.Hydrate()
	store.AddCartItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: "9.50"})
	store.AddCartItem(CartItem{ProductID: 2, Quantity: 1, UnitPrice: "12.00"})

	store.RemoveCartItem(1)

	items := store.CartItems()
	if len(items) != 1 || items[0].ProductID != 2 {
		t.Errorf("cart = %+v, want only product 2", items)
	}
}

func TestCartSubtotal(t *testing.T) {
	tests := []struct {
		name  string
		items []CartItem
		want  string
	}{
		{
			name: "empty cart",
			want: "0.00",
		},
		{
			name: "single line",
			items: []CartItem{
				{ProductID: 1, Quantity: 2, UnitPrice: "9.50"},
			},
			want: "19.00",
		},
		{
			name: "multiple lines",
			items: []CartItem{
				{ProductID: 1, Quantity: 2, UnitPrice: "9.50"},
				{ProductID: 3, Quantity: 1, UnitPrice: "6.25"},
			},
			want: "25.25",
		},
		{
			name: "unparseable price counts as zero",
			items: []CartItem{
				{ProductID: 1, Quantity: 1, UnitPrice: "n/a"},
				{ProductID: 3, Quantity: 1, UnitPrice: "6.25"},
			},
			want: "6.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(nil, nil)
			store.Hydrate()
			for _, item := range tt.items {
				store.AddCartItem(item)
			}
			if got := store.CartSubtotal(); got != tt.want {
				t.Errorf("CartSubtotal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCartPersistsAcrossReload(t *testing.T) {
	fs := newFileStore(t)

	first := NewStore(fs, nil)
	first.Hydrate()
	first.AddCartItem(CartItem{ProductID: 1, ProductName: "Margherita", Quantity: 2, UnitPrice: "9.50"})

	reloaded := NewStore(fs, nil)
	reloaded.Hydrate()

	items := reloaded.CartItems()
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Errorf("reloaded cart = %+v, want the persisted line", items)
	}
}
