package models

import (
	"encoding/json"
	"errors"
	"time"
)

// CartSchemaVersion is written into every persisted cart envelope.
const CartSchemaVersion = 1

// MinQuantityKg is the smallest quantity a cart line may hold.
const MinQuantityKg = 1.0

// Listing is the catalog snapshot a buyer adds to the basket.
type Listing struct {
	ID    string  `json:"id" binding:"required"`
	Name  string  `json:"name" binding:"required"`
	Price float64 `json:"price" binding:"gte=0"`
	Image string  `json:"image,omitempty"`
}

// CartLine keeps the name and price captured when the listing was added;
// they are never re-fetched.
type CartLine struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	UnitPriceUSD float64 `json:"price"`
	QuantityKg   float64 `json:"qtyKg"`
	Image        string  `json:"image,omitempty"`
}

func (l CartLine) LineTotal() float64 {
	return l.UnitPriceUSD * l.QuantityKg
}

// Subtotal sums price x quantity over lines.
func Subtotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.LineTotal()
	}
	return total
}

// TotalKg sums the quantities of lines.
func TotalKg(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.QuantityKg
	}
	return total
}

// CopyLines returns a slice that shares no backing array with lines.
func CopyLines(lines []CartLine) []CartLine {
	if lines == nil {
		return []CartLine{}
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// PersistedCart is the envelope stored under the buyer's cart key.
type PersistedCart struct {
	Version int        `json:"version"`
	Items   []CartLine `json:"items"`
	SavedAt time.Time  `json:"saved_at"`
}

var ErrUnsupportedCartVersion = errors.New("unsupported cart schema version")

// EncodeCart serializes lines into the current envelope format.
func EncodeCart(lines []CartLine, now time.Time) ([]byte, error) {
	return json.Marshal(PersistedCart{
		Version: CartSchemaVersion,
		Items:   CopyLines(lines),
		SavedAt: now.UTC(),
	})
}

// DecodeCart accepts the versioned envelope as well as the bare JSON array
// the browser portal used to keep in local storage.
func DecodeCart(data []byte) ([]CartLine, error) {
	var legacy []CartLine
	if err := json.Unmarshal(data, &legacy); err == nil {
		return validLines(legacy), nil
	}

	var envelope PersistedCart
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.Version != CartSchemaVersion {
		return nil, ErrUnsupportedCartVersion
	}
	return validLines(envelope.Items), nil
}

// validLines drops entries that could never have been produced by the store
// and merges duplicate ids.
func validLines(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ID == "" || line.QuantityKg <= 0 || line.UnitPriceUSD < 0 {
			continue
		}
		if line.QuantityKg < MinQuantityKg {
			line.QuantityKg = MinQuantityKg
		}
		if i, ok := index[line.ID]; ok {
			out[i].QuantityKg += line.QuantityKg
			continue
		}
		index[line.ID] = len(out)
		out = append(out, line)
	}
	return out
}
