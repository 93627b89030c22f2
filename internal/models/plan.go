package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PlanTrial       = "TRIAL"
	PlanMonthly     = "MONTHLY"
	PlanThreeMonths = "THREE_MONTHS"
	PlanSixMonths   = "SIX_MONTHS"
	PlanYearly      = "YEARLY"
)

// Plans ordered from the lowest tier to the highest
var PlanRanks = map[string]int{
	PlanTrial:       0,
	PlanMonthly:     1,
	PlanThreeMonths: 2,
	PlanSixMonths:   3,
	PlanYearly:      4,
}

type Plan struct {
	ID            uuid.UUID
	Name          string
	Price         decimal.Decimal
	Currency      Currency
	DurationDays  int
	SearchesLimit int
	AILimit       *int // nil means unlimited
}
