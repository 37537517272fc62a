package services

import (
	"testing"

	"munda-checkout/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := models.CartLine{ID: "L-001", Name: "Tomatoes", UnitPriceUSD: 1.2, QuantityKg: 2}
	b := models.CartLine{ID: "L-002", Name: "Onions", UnitPriceUSD: 0.8, QuantityKg: 1}

	base := Fingerprint([]models.CartLine{a, b}, models.DistrictHarare)

	t.Run("line order does not matter", func(t *testing.T) {
		assert.Equal(t, base, Fingerprint([]models.CartLine{b, a}, models.DistrictHarare))
	})

	t.Run("district case does not matter", func(t *testing.T) {
		assert.Equal(t, base, Fingerprint([]models.CartLine{a, b}, "harare"))
	})

	t.Run("display name does not matter", func(t *testing.T) {
		renamed := a
		renamed.Name = "Roma tomatoes"
		assert.Equal(t, base, Fingerprint([]models.CartLine{renamed, b}, models.DistrictHarare))
	})

	t.Run("quantity changes it", func(t *testing.T) {
		more := a
		more.QuantityKg = 3
		assert.NotEqual(t, base, Fingerprint([]models.CartLine{more, b}, models.DistrictHarare))
	})

	t.Run("district changes it", func(t *testing.T) {
		assert.NotEqual(t, base, Fingerprint([]models.CartLine{a, b}, models.DistrictBulawayo))
	})

	t.Run("removal changes it", func(t *testing.T) {
		assert.NotEqual(t, base, Fingerprint([]models.CartLine{a}, models.DistrictHarare))
	})
}
