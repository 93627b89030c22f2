package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
)

type PlanRepo struct {
	DB DBTX
}

const planColumns = `id, name, price, currency, duration_days, searches_limit, ai_limit`

// Keep the id of an existing plan so users keep pointing to it
const upsertPlan = `-- name: UpsertPlan
INSERT INTO plans (id, name, price, currency, duration_days, searches_limit, ai_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO UPDATE
SET price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	duration_days = EXCLUDED.duration_days,
	searches_limit = EXCLUDED.searches_limit,
	ai_limit = EXCLUDED.ai_limit
RETURNING ` + planColumns

func (r *PlanRepo) Upsert(ctx context.Context, p models.Plan) (models.Plan, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, upsertPlan, p.ID, p.Name, p.Price, p.Currency, p.DurationDays, p.SearchesLimit, p.AILimit)
	plan, err := pgx.CollectOneRow(rows, rowToPlan)
	if err != nil {
		return plan, fmt.Errorf("db error: %w", err)
	}

	return plan, nil
}

const getPlanByName = `-- name: GetPlanByName
SELECT ` + planColumns + ` FROM plans
WHERE name = $1
`

func (r *PlanRepo) GetByName(ctx context.Context, name string) (models.Plan, error) {
	rows, _ := r.DB.Query(ctx, getPlanByName, name)
	return collectPlan(rows)
}

const getPlanByID = `-- name: GetPlanByID
SELECT ` + planColumns + ` FROM plans
WHERE id = $1
`

func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Plan, error) {
	rows, _ := r.DB.Query(ctx, getPlanByID, id)
	return collectPlan(rows)
}

const listPlans = `-- name: ListPlans
SELECT ` + planColumns + ` FROM plans
ORDER BY price, duration_days
`

func (r *PlanRepo) List(ctx context.Context) ([]models.Plan, error) {
	rows, _ := r.DB.Query(ctx, listPlans)
	plans, err := pgx.CollectRows(rows, rowToPlan)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return plans, nil
}

func collectPlan(rows pgx.Rows) (models.Plan, error) {
	plan, err := pgx.CollectOneRow(rows, rowToPlan)

	switch {
	case err == nil:
		return plan, nil
	case errors.Is(err, pgx.ErrNoRows):
		return plan, apperrors.ErrPlanNotFound
	default:
		return plan, fmt.Errorf("db error: %w", err)
	}
}

func rowToPlan(row pgx.CollectableRow) (models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.DurationDays, &p.SearchesLimit, &p.AILimit)
	return p, err
}
