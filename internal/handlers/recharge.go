package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/logger"
)

type paymentJSON struct {
	ID             uuid.UUID `json:"id"`
	GatewayOrderID string    `json:"order_id"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
}

type paymentEntryJSON struct {
	ID               uuid.UUID `json:"id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	OwnerKind        string    `json:"owner_kind"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	GatewayOrderID   string    `json:"razorpay_order_id"`
	GatewayPaymentID *string   `json:"razorpay_payment_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func handleListPayments(recharges rechargeService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var limit int
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				render.ServiceError(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		payments, err := recharges.List(r.Context(), caller, limit)
		if err != nil {
			renderError(w, l, "list payments", err)
			return
		}

		out := make([]paymentEntryJSON, 0, len(payments))
		for _, p := range payments {
			entry := paymentEntryJSON{
				ID:             p.ID,
				OwnerID:        p.Owner.ID,
				OwnerKind:      string(p.Owner.Kind),
				Amount:         p.Amount.StringFixed(2),
				Currency:       string(p.Currency),
				Status:         p.Status,
				GatewayOrderID: p.GatewayOrderID,
				CreatedAt:      p.CreatedAt,
				UpdatedAt:      p.UpdatedAt,
			}
			if p.GatewayPaymentID != "" {
				entry.GatewayPaymentID = &p.GatewayPaymentID
			}
			out = append(out, entry)
		}
		render.JSON(w, out)
	})
}

func handleRechargeInit(recharges rechargeService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount"`
	}
	type response struct {
		Payment     paymentJSON `json:"payment"`
		AmountMinor int64       `json:"amount_minor"`
		Receipt     string      `json:"receipt"`
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

		res, err := recharges.Init(r.Context(), caller.Owner(), data.Amount)
		if err != nil {
			renderError(w, l, "recharge init", err)
			return
		}

		render.JSONWithStatus(w, response{
			Payment: paymentJSON{
				ID:             res.Payment.ID,
				GatewayOrderID: res.Payment.GatewayOrderID,
				Amount:         res.Payment.Amount.StringFixed(2),
				Currency:       string(res.Payment.Currency),
				Status:         res.Payment.Status,
			},
			AmountMinor: res.Order.Amount,
			Receipt:     res.Order.Receipt,
		}, http.StatusCreated)
	})
}

func handleRechargeVerify(recharges rechargeService, l logger.Logger) http.Handler {
	type request struct {
		OrderID   string `json:"razorpay_order_id" validate:"required"`
		PaymentID string `json:"razorpay_payment_id" validate:"required"`
		Signature string `json:"razorpay_signature" validate:"required"`
	}
	type response struct {
		Message          string     `json:"message"`
		AlreadyProcessed bool       `json:"already_processed"`
		Wallet           walletJSON `json:"wallet"`
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

		res, err := recharges.Verify(r.Context(), caller.Owner(), data.OrderID, data.PaymentID, data.Signature, caller.ID.String())
		if err != nil {
			renderError(w, l, "recharge verify", err)
			return
		}

		message := "Wallet recharged"
		if res.AlreadyProcessed {
			message = "Payment already processed"
		}
		render.JSON(w, response{Message: message, AlreadyProcessed: res.AlreadyProcessed, Wallet: toWalletJSON(res.Wallet)})
	})
}
