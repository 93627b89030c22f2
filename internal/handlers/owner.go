package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/service/user"
)

func handleCreateOwner(owners ownerService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"required,oneof=user reseller admin"`
		Currency string `json:"currency" validate:"required,currency"`
	}
	type response struct {
		ID        uuid.UUID  `json:"id"`
		Username  string     `json:"username"`
		Role      string     `json:"role"`
		ParentID  *uuid.UUID `json:"parent_id,omitempty"`
		CreatedAt time.Time  `json:"created_at"`
		Wallet    walletJSON `json:"wallet"`
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

		params := user.CreateParams{
			Username: data.Username,
			Password: data.Password,
			Role:     data.Role,
			Currency: models.Currency(data.Currency),
		}

		// Resellers only create plain users, which stay attached to them
		if caller.Role == models.RoleReseller {
			if data.Role != models.RoleUser {
				renderError(w, l, "create owner", apperrors.ErrForbidden)
				return
			}
			params.ParentID = &caller.ID
		}

		created, wallet, err := owners.CreateOwner(r.Context(), params)
		if err != nil {
			renderError(w, l, "create owner", err)
			return
		}

		render.JSONWithStatus(w, response{
			ID:        created.ID,
			Username:  created.Username,
			Role:      created.Role,
			ParentID:  created.ParentID,
			CreatedAt: created.CreatedAt,
			Wallet:    toWalletJSON(wallet),
		}, http.StatusCreated)
	})
}

func handleDeleteOwner(owners ownerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid owner id", http.StatusBadRequest)
			return
		}

		if err := owners.DeleteOwner(r.Context(), id); err != nil {
			renderError(w, l, "delete owner", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
