package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/logger"
)

type credentials struct {
	Login    string `json:"login" validate:"required,min=2,max=50"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[credentials](w, r)
		if err != nil {
			return
		}

		token, err := authService.Register(r.Context(), data.Login, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
			return
		default:
			renderError(w, l, "register", err)
			return
		}

		authService.SetToken(w, token)
		render.JSON(w, tokenResponse{Message: "User registered successfully", Token: token.Value, ExpiresAt: token.ExpiresAt})
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := authService.Login(r.Context(), data.Login, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusUnauthorized)
			return
		default:
			renderError(w, l, "login", err)
			return
		}

		authService.SetToken(w, token)
		render.JSON(w, tokenResponse{Message: "User logged in successfully", Token: token.Value, ExpiresAt: token.ExpiresAt})
	})
}

func handleMe() http.Handler {
	type response struct {
		ID         uuid.UUID  `json:"id"`
		Username   string     `json:"username"`
		Role       string     `json:"role"`
		Wallet     ownerJSON  `json:"wallet"`
		ParentID   *uuid.UUID `json:"parent_id,omitempty"`
		PlanID     *uuid.UUID `json:"plan_id,omitempty"`
		PlanEndsAt *time.Time `json:"plan_ends_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			ID:         user.ID,
			Username:   user.Username,
			Role:       user.Role,
			Wallet:     toOwnerJSON(user.Owner()),
			ParentID:   user.ParentID,
			PlanID:     user.PlanID,
			PlanEndsAt: user.PlanEndsAt,
		})
	})
}
