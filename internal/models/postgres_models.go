package models

import (
	"time"
)

// CartRecord model - PostgreSQL (durable cart storage, one row per cart key)
type CartRecord struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (CartRecord) TableName() string {
	return "buyer_carts"
}
