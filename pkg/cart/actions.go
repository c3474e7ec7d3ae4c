package cart

// Action is a cart mutation passed to Store.Dispatch.
type Action interface {
	apply(items []Item) []Item
	name() string
}

// validator is implemented by actions whose payload can be invalid.
type validator interface {
	validate() error
}

// AddItem appends the product with quantity 1, or increments the quantity of
// an existing line. Name, price and image of an existing line are kept.
// A product with an invalid price is rejected by Dispatch.
type AddItem struct {
	Product Product
}

func (a AddItem) name() string { return "add_item" }

func (a AddItem) validate() error { return a.Product.Validate() }

func (a AddItem) apply(items []Item) []Item {
	for i := range items {
		if items[i].ID == a.Product.ID {
			items[i].Quantity++
			return items
		}
	}
	return append(items, Item{
		ID:        a.Product.ID,
		Name:      a.Product.Name,
		UnitPrice: a.Product.UnitPrice,
		Quantity:  1,
		Image:     a.Product.Image,
	})
}

// RemoveItem deletes the line with ID. Missing ids are a no-op.
type RemoveItem struct {
	ID int64
}

func (a RemoveItem) name() string { return "remove_item" }

func (a RemoveItem) apply(items []Item) []Item {
	out := items[:0]
	for _, item := range items {
		if item.ID != a.ID {
			out = append(out, item)
		}
	}
	return out
}

// UpdateQuantity sets the quantity of the line with ID. A quantity of zero
// or less removes the line.
type UpdateQuantity struct {
	ID       int64
	Quantity int
}

func (a UpdateQuantity) name() string { return "update_quantity" }

func (a UpdateQuantity) apply(items []Item) []Item {
	if a.Quantity <= 0 {
		return RemoveItem{ID: a.ID}.apply(items)
	}
	for i := range items {
		if items[i].ID == a.ID {
			items[i].Quantity = a.Quantity
		}
	}
	return items
}

// ClearCart empties the cart and removes the stored snapshot.
type ClearCart struct{}

func (ClearCart) name() string { return "clear_cart" }

func (ClearCart) apply([]Item) []Item { return nil }

// orderPlaced subtracts the ordered quantities after a successful checkout.
// Lines added while the order was in flight stay in the cart.
type orderPlaced struct {
	ordered []Item
}

func (orderPlaced) name() string { return "order_placed" }

func (a orderPlaced) apply(items []Item) []Item {
	ordered := make(map[int64]int, len(a.ordered))
	for _, item := range a.ordered {
		ordered[item.ID] += item.Quantity
	}

	out := items[:0]
	for _, item := range items {
		item.Quantity -= ordered[item.ID]
		if item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}
