package services

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"munda-checkout/internal/models"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives the key a quote is matched against. Line order does
// not matter; district comparison is case-insensitive. Name and image are
// display-only and excluded.
func Fingerprint(lines []models.CartLine, district models.District) models.Fingerprint {
	sorted := models.CopyLines(lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	b.WriteString("d=")
	b.WriteString(strings.ToLower(strings.TrimSpace(string(district))))
	for _, line := range sorted {
		b.WriteString("\x1f")
		b.WriteString(line.ID)
		b.WriteString("|")
		b.WriteString(strconv.FormatFloat(line.UnitPriceUSD, 'g', -1, 64))
		b.WriteString("|")
		b.WriteString(strconv.FormatFloat(line.QuantityKg, 'g', -1, 64))
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return models.Fingerprint(hex.EncodeToString(sum[:]))
}
