package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
)

type planJSON struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Price         string    `json:"price"`
	Currency      string    `json:"currency"`
	DurationDays  int       `json:"duration_days"`
	SearchesLimit int       `json:"searches_limit"`
	AILimit       *int      `json:"ai_limit"`
}

func toPlanJSON(p models.Plan) planJSON {
	return planJSON{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		Currency:      string(p.Currency),
		DurationDays:  p.DurationDays,
		SearchesLimit: p.SearchesLimit,
		AILimit:       p.AILimit,
	}
}

func handleListPlans(plans planService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := plans.List(r.Context())
		if err != nil {
			renderError(w, l, "list plans", err)
			return
		}

		res := make([]planJSON, 0, len(list))
		for _, p := range list {
			res = append(res, toPlanJSON(p))
		}
		render.JSON(w, res)
	})
}

func handlePurchasePlan(plans planService, l logger.Logger) http.Handler {
	type request struct {
		Plan string `json:"plan" validate:"required"`
	}
	type response struct {
		Plan        planJSON   `json:"plan"`
		ActivatedAt *time.Time `json:"activated_at"`
		EndsAt      *time.Time `json:"ends_at"`
		Wallet      walletJSON `json:"wallet"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := plans.Purchase(r.Context(), caller.ID, data.Plan)
		if err != nil {
			renderError(w, l, "purchase plan", err)
			return
		}

		render.JSON(w, response{
			Plan:        toPlanJSON(res.Plan),
			ActivatedAt: res.User.PlanActivatedAt,
			EndsAt:      res.User.PlanEndsAt,
			Wallet:      toWalletJSON(res.Wallet),
		})
	})
}
