package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderReceipt model - MongoDB (archive of confirmed checkouts per buyer)
type OrderReceipt struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BuyerID       string             `bson:"buyer_id" json:"buyer_id"`
	OrderNumber   string             `bson:"order_number" json:"order_number"`
	PaymentMethod PaymentMethod      `bson:"payment_method" json:"payment_method"`
	Delivery      DeliveryInfo       `bson:"delivery" json:"delivery"`
	Lines         []CartLine         `bson:"lines" json:"lines"`
	Totals        OrderTotals        `bson:"totals" json:"totals"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
