package models

import (
	"strings"
)

// District is one of the marketplace's delivery service districts.
type District string

const (
	DistrictHarare      District = "Harare"
	DistrictBulawayo    District = "Bulawayo"
	DistrictChitungwiza District = "Chitungwiza"
	DistrictMutare      District = "Mutare"
	DistrictGweru       District = "Gweru"
	DistrictKwekwe      District = "Kwekwe"
	DistrictKadoma      District = "Kadoma"
	DistrictMasvingo    District = "Masvingo"
	DistrictChinhoyi    District = "Chinhoyi"
	DistrictNorton      District = "Norton"
	DistrictMarondera   District = "Marondera"
	DistrictRuwa        District = "Ruwa"
)

// Districts lists the service districts in display order.
var Districts = []District{
	DistrictHarare,
	DistrictBulawayo,
	DistrictChitungwiza,
	DistrictMutare,
	DistrictGweru,
	DistrictKwekwe,
	DistrictKadoma,
	DistrictMasvingo,
	DistrictChinhoyi,
	DistrictNorton,
	DistrictMarondera,
	DistrictRuwa,
}

// ParseDistrict matches a district name case-insensitively.
func ParseDistrict(name string) (District, bool) {
	name = strings.TrimSpace(name)
	for _, d := range Districts {
		if strings.EqualFold(string(d), name) {
			return d, true
		}
	}
	return "", false
}

func (d District) IsValid() bool {
	_, ok := ParseDistrict(string(d))
	return ok
}

type DeliveryInfo struct {
	District     District `json:"district"`
	Address      string   `json:"address"`
	ContactName  string   `json:"contact_name"`
	ContactPhone string   `json:"contact_phone"`
}

// Missing returns the JSON names of the fields that are still blank.
func (d DeliveryInfo) Missing() []string {
	var missing []string
	if strings.TrimSpace(string(d.District)) == "" {
		missing = append(missing, "district")
	}
	if strings.TrimSpace(d.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(d.ContactName) == "" {
		missing = append(missing, "contact_name")
	}
	if strings.TrimSpace(d.ContactPhone) == "" {
		missing = append(missing, "contact_phone")
	}
	return missing
}

func (d DeliveryInfo) Complete() bool {
	return len(d.Missing()) == 0
}

type PaymentMethod string

const (
	PaymentEcoCash      PaymentMethod = "ECOCASH"
	PaymentZipit        PaymentMethod = "ZIPIT"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCard         PaymentMethod = "CARD"
)

var PaymentMethods = []PaymentMethod{
	PaymentEcoCash,
	PaymentZipit,
	PaymentBankTransfer,
	PaymentCard,
}

func (m PaymentMethod) IsValid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// CheckoutStep is a state of the checkout flow.
type CheckoutStep string

const (
	StepDelivery  CheckoutStep = "DELIVERY"
	StepPayment   CheckoutStep = "PAYMENT"
	StepConfirmed CheckoutStep = "CONFIRMED"
)
