package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
)

const withdrawDescription = "Admin withdrawal"

const selfRechargeDescription = "Self recharge via payment gateway"

type ownerJSON struct {
	Kind string    `json:"kind" validate:"required,owner_kind"`
	ID   uuid.UUID `json:"id" validate:"required"`
}

func (o ownerJSON) ref() models.OwnerRef {
	return models.OwnerRef{ID: o.ID, Kind: models.OwnerKind(o.Kind)}
}

func toOwnerJSON(o models.OwnerRef) ownerJSON {
	return ownerJSON{Kind: string(o.Kind), ID: o.ID}
}

type walletJSON struct {
	ID       uuid.UUID `json:"id"`
	Owner    ownerJSON `json:"owner"`
	Balance  string    `json:"balance"`
	Currency string    `json:"currency"`
}

func toWalletJSON(w models.Wallet) walletJSON {
	return walletJSON{
		ID:       w.ID,
		Owner:    toOwnerJSON(w.Owner),
		Balance:  w.Balance.StringFixed(2),
		Currency: string(w.Currency),
	}
}

func handleWalletHistory(wallets walletService, owners ownerService, l logger.Logger) http.Handler {
	type transaction struct {
		ID            uuid.UUID `json:"id"`
		Type          string    `json:"type"`
		Amount        string    `json:"amount"`
		DisplayAmount string    `json:"display_amount"`
		Description   string    `json:"description"`
		By            string    `json:"by"`
		CreatedAt     time.Time `json:"created_at"`
	}
	type response struct {
		Wallet          walletJSON    `json:"wallet"`
		Balance         string        `json:"balance"`
		DisplayCurrency string        `json:"display_currency"`
		Transactions    []transaction `json:"transactions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		kind, err := models.ParseOwnerKind(r.PathValue("kind"))
		if err != nil {
			renderError(w, l, "wallet history", err)
			return
		}
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid owner id", http.StatusBadRequest)
			return
		}
		owner := models.OwnerRef{ID: id, Kind: kind}

		var display models.Currency
		if value := r.URL.Query().Get("currency"); value != "" {
			display, err = models.ParseCurrency(value)
			if err != nil {
				renderError(w, l, "wallet history", err)
				return
			}
		}

		if err := authorize(r.Context(), owners, caller, owner); err != nil {
			renderError(w, l, "wallet history", err)
			return
		}

		st, err := wallets.GetHistory(r.Context(), owner, display)
		if err != nil {
			renderError(w, l, "wallet history", err)
			return
		}

		res := response{
			Wallet:          toWalletJSON(st.Wallet),
			Balance:         st.Amount.StringFixed(2),
			DisplayCurrency: string(st.Currency),
			Transactions:    make([]transaction, 0, len(st.Transactions)),
		}
		for _, t := range st.Transactions {
			res.Transactions = append(res.Transactions, transaction{
				ID:            t.ID,
				Type:          t.Type,
				Amount:        t.Amount.StringFixed(2),
				DisplayAmount: t.DisplayAmount.StringFixed(2),
				Description:   t.Description,
				By:            t.By,
				CreatedAt:     t.CreatedAt,
			})
		}

		render.JSON(w, res)
	})
}

func handleTransfer(wallets walletService, owners ownerService, l logger.Logger) http.Handler {
	type request struct {
		From   ownerJSON       `json:"from"`
		To     ownerJSON       `json:"to"`
		Amount decimal.Decimal `json:"amount"`
	}
	type response struct {
		From walletJSON `json:"from"`
		To   walletJSON `json:"to"`
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
		from, to := data.From.ref(), data.To.ref()

		for _, owner := range []models.OwnerRef{from, to} {
			if err := authorize(r.Context(), owners, caller, owner); err != nil {
				renderError(w, l, "transfer", err)
				return
			}
		}

		res, err := wallets.Transfer(r.Context(), from, to, data.Amount, caller.ID.String())
		if err != nil {
			renderError(w, l, "transfer", err)
			return
		}

		render.JSON(w, response{From: toWalletJSON(res.From), To: toWalletJSON(res.To)})
	})
}

func handleWithdraw(wallets walletService, owners ownerService, l logger.Logger) http.Handler {
	type request struct {
		Owner  ownerJSON       `json:"owner"`
		Amount decimal.Decimal `json:"amount"`
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
		owner := data.Owner.ref()

		if err := authorize(r.Context(), owners, caller, owner); err != nil {
			renderError(w, l, "withdraw", err)
			return
		}

		wallet, err := wallets.Debit(r.Context(), owner, data.Amount, withdrawDescription, caller.ID.String())
		if err != nil {
			renderError(w, l, "withdraw", err)
			return
		}

		render.JSON(w, toWalletJSON(wallet))
	})
}

func handleAdminRecharge(wallets walletService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok || admin.Role != models.RoleAdmin {
			renderError(w, l, "admin recharge", apperrors.ErrForbidden)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wallet, err := wallets.Credit(r.Context(), admin.Owner(), data.Amount, admin.ID.String(), selfRechargeDescription)
		if err != nil {
			renderError(w, l, "admin recharge", err)
			return
		}

		render.JSON(w, toWalletJSON(wallet))
	})
}
