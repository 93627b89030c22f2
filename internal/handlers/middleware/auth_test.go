package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
	"github.com/nkiryanov/seowallet/internal/models"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, r *http.Request) (models.User, error)

func (f authFunc) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	return f(ctx, r)
}

func asUser(u models.User) authFunc {
	return func(ctx context.Context, r *http.Request) (models.User, error) {
		return u, nil
	}
}

// Simple handler that try to get user from context
// If ok write it username to response
func usernameHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set user to response or write error to response
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Username))
		require.NoError(t, err, "should write username to response")
	})
}

func get(t *testing.T, h http.Handler) (int, string) {
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	return resp.StatusCode, string(body)
}

func TestAuthMiddleware_Auth(t *testing.T) {
	t.Run("auth ok", func(t *testing.T) {
		middleware := AuthMiddleware(asUser(models.User{Username: "test-user"}))

		code, body := get(t, middleware(usernameHandler(t)))

		require.Equalf(t, http.StatusOK, code, "should return status OK. Resp: %s", body)
		require.Equal(t, "test-user", body, "should return username in response")
	})

	t.Run("auth fail", func(t *testing.T) {
		// Middleware that always fails
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (models.User, error) {
			return models.User{}, errors.New("go away")
		}))

		code, body := get(t, middleware(usernameHandler(t)))

		require.Equalf(t, http.StatusUnauthorized, code, "should return status Unauthorized. Resp: %s", body)
		require.JSONEq(t,
			`{
				"error": "service_error",
				"message": "Unauthorized"
			}`,
			body,
		)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	guarded := func(role string) http.Handler {
		return AuthMiddleware(asUser(models.User{Username: role, Role: role}))(
			RequireRole(models.RoleAdmin, models.RoleReseller)(usernameHandler(t)),
		)
	}

	tests := []struct {
		role     string
		expected int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleReseller, http.StatusOK},
		{models.RoleUser, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			code, body := get(t, guarded(tt.role))

			require.Equalf(t, tt.expected, code, "Resp: %s", body)
		})
	}

	t.Run("without auth", func(t *testing.T) {
		code, _ := get(t, RequireRole(models.RoleAdmin)(usernameHandler(t)))

		require.Equal(t, http.StatusUnauthorized, code)
	})
}
