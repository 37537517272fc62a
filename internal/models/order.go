package models

import "time"

// Fingerprint summarizes cart contents plus delivery district. Quotes are
// only valid for the fingerprint they were computed for.
type Fingerprint string

// OrderItem is the wire form of a cart line sent to the marketplace.
type OrderItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	QtyKg float64 `json:"qtyKg"`
}

// OrderRequest is the body of both POST /orders/preview and POST /orders.
type OrderRequest struct {
	Items            []OrderItem   `json:"items"`
	DeliveryDistrict string        `json:"delivery_district"`
	DeliveryAddress  string        `json:"delivery_address"`
	ContactName      string        `json:"contact_name"`
	ContactPhone     string        `json:"contact_phone"`
	PaymentMethod    PaymentMethod `json:"payment_method,omitempty"`
}

// NewOrderRequest maps cart lines and delivery details into the wire body.
func NewOrderRequest(lines []CartLine, delivery DeliveryInfo) OrderRequest {
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderItem{
			ID:    line.ID,
			Name:  line.Name,
			Price: line.UnitPriceUSD,
			QtyKg: line.QuantityKg,
		})
	}
	return OrderRequest{
		Items:            items,
		DeliveryDistrict: string(delivery.District),
		DeliveryAddress:  delivery.Address,
		ContactName:      delivery.ContactName,
		ContactPhone:     delivery.ContactPhone,
	}
}

type OrderTotalsLine struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	QtyKg     float64 `json:"qtyKg"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// OrderTotals is the priced breakdown returned by the marketplace.
type OrderTotals struct {
	Lines       []OrderTotalsLine `json:"lines,omitempty"`
	Subtotal    float64           `json:"subtotal"`
	DeliveryFee float64           `json:"delivery_fee"`
	ServiceFee  float64           `json:"service_fee"`
	Total       float64           `json:"total"`
	TotalKg     float64           `json:"total_kg"`
	Currency    string            `json:"currency,omitempty"`
}

type OrderConfirmation struct {
	OrderNumber string      `json:"order_number"`
	Totals      OrderTotals `json:"totals"`
}

// Quote is a server-computed breakdown held by the client together with the
// fingerprint of the request that produced it.
type Quote struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	OrderTotals
	ReceivedAt time.Time `json:"received_at"`
}

// QuoteState separates the instantly derivable local subtotal from the
// authoritative server quote.
type QuoteState struct {
	ProvisionalSubtotal float64 `json:"provisional_subtotal"`
	ServerQuote         *Quote  `json:"server_quote"`
	Pending             bool    `json:"pending"`
	Error               string  `json:"error,omitempty"`
}
