package render

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_JSON(t *testing.T) {
	tests := []struct {
		name   string
		render func(w http.ResponseWriter)
		status int
	}{
		{
			name:   "ok by default",
			render: func(w http.ResponseWriter) { JSON(w, map[string]any{"balance": "163.50", "currency": "INR"}) },
			status: http.StatusOK,
		},
		{
			name: "explicit status",
			render: func(w http.ResponseWriter) {
				JSONWithStatus(w, map[string]any{"balance": "163.50", "currency": "INR"}, http.StatusCreated)
			},
			status: http.StatusCreated,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			tc.render(w)

			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"balance":"163.50","currency":"INR"}`, w.Body.String())
		})
	}
}

func TestRender_ServiceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		message := "something terrible happened"
		ServiceError(w, message, http.StatusForbidden)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{
			"error": "service_error",
			"message": "something terrible happened"
		}`,
		string(body),
	)
}

func TestRender_DecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := struct {
			Owner  string `json:"owner"`
			Amount int    `json:"amount"`
		}{}

		err := json.NewDecoder(r.Body).Decode(&value)
		require.Error(t, err, "Please check what JSON was sent. Test expected that it is invalid")
		DecodeError(w, err)
	}))
	defer ts.Close()

	tests := []struct {
		name        string
		requestBody string
		expected    string
	}{
		{
			name:        "json parsing error",
			requestBody: `invalid-json`,
			expected: `{
				"error":"decoding_failed",
				"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
			}`,
		},
		{
			name:        "invalid type ok",
			requestBody: `{"owner": "valid_json", "amount": "but incorrect type"}`,
			expected: `{
				"error": "decoding_failed",
				"message": "Invalid data type for field 'amount'"
			}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/test", "application/json", strings.NewReader(tc.requestBody))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck

			assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, tc.expected, string(body))
		})
	}
}

func TestRender_ValidationErrors(t *testing.T) {
	type owner struct {
		Kind string `json:"kind" validate:"owner_kind"`
	}
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"min=8"`
		Role     string `json:"role" validate:"oneof=user reseller admin"`
		Currency string `json:"currency" validate:"currency"`
		Owner    owner  `json:"owner"`
		Note     string `json:"note" validate:"max=5"`
		Email    string `json:"email" validate:"email"`
	}

	err := validate.Struct(request{
		Password: "123",
		Role:     "root",
		Currency: "EUR",
		Owner:    owner{Kind: "Robot"},
		Note:     "too long note",
		Email:    "not-valid-email",
	})
	require.Error(t, err, "test expects that data not pass validation")
	errs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "be sure you pass structure to validator")

	w := httptest.NewRecorder()
	ValidationErrors(w, errs)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {
			"username": "This field is required",
			"password": "Value is too short (minimum 8)",
			"role": "Must be one of: user reseller admin",
			"currency": "Unknown currency",
			"kind": "Unknown owner kind",
			"note": "Value is too long (maximum 5)",
			"email": "Invalid value"
		}
	}`, w.Body.String())
}

func TestRender_BindAndValidate(t *testing.T) {
	type request struct {
		Username string `json:"username" validate:"required"`
		Currency string `json:"currency" validate:"currency"`
	}

	tests := []struct {
		name           string
		requestBody    string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "valid request",
			requestBody:    `{"username": "john"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success": true}`,
		},
		{
			name:           "invalid json",
			requestBody:    `invalid-json`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "decoding_failed",
				"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
			}`,
		},
		{
			name:           "validation failed",
			requestBody:    `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"username": "This field is required"
				}
			}`,
		},
		{
			name:           "unknown currency",
			requestBody:    `{"username": "john", "currency": "EUR"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"currency": "Unknown currency"
				}
			}`,
		},
		{
			name:           "body too large",
			requestBody:    `{"username": "` + strings.Repeat("a", maxBodySize) + `"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "decoding_failed",
				"message": "Failed to parse JSON: http: request body too large"
			}`,
		},
		{
			name:           "known currency",
			requestBody:    `{"username": "john", "currency": "USD"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success": true}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, err := BindAndValidate[request](w, r)
				if err != nil {
					return // Error response already written
				}
				// Success case
				JSON(w, map[string]bool{"success": true})
			}))
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/test", "application/json", strings.NewReader(tc.requestBody))
			require.NoError(t, err)
			require.Equal(t, tc.expectedStatus, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck

			assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, tc.expectedBody, string(body))
		})
	}
}
