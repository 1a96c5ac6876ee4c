package model

import (
	"fmt"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanAgency     Plan = "AGENCY"
	PlanEnterprise Plan = "ENTERPRISE"
)

// DefaultCheckoutPlan is used when checkout is requested without a plan.
const DefaultCheckoutPlan = PlanPro

// Cents is a BRL amount in centavos.
type Cents int64

// String renders the amount with two decimal places, e.g. "49.90".
func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(c)/100, int64(c)%100)
}

// Float returns the amount in reais, as expected by the payment provider.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

var planPrices = map[Plan]Cents{
	PlanFree:       0,
	PlanPro:        4990,
	PlanAgency:     14990,
	PlanEnterprise: 39990,
}

// ParsePlan normalises s and reports whether it names a known plan.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := planPrices[p]
	return p, ok
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planPrices[p]
	return ok
}

// Price returns the monthly price of p.
func (p Plan) Price() Cents {
	return planPrices[p]
}

// PlanPrice is one row of the public price table
type PlanPrice struct {
	Plan   Plan   `json:"plan"`
	Amount string `json:"amount"`
}

// PriceTable lists all plans in ascending price order.
func PriceTable() []PlanPrice {
	order := []Plan{PlanFree, PlanPro, PlanAgency, PlanEnterprise}
	out := make([]PlanPrice, 0, len(order))
	for _, p := range order {
		out = append(out, PlanPrice{Plan: p, Amount: p.Price().String()})
	}
	return out
}
