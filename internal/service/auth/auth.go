package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
	defaultAccessCookieName = "access_token"
)

// Owners the auth service signs up and logs in
type userService interface {
	// Create a user with role 'user' and its wallet
	// Has to return apperrors.ErrUserAlreadyExists if username is taken
	Register(ctx context.Context, username string, password string) (models.User, error)

	// Has to return apperrors.ErrUserNotFound if user not found or password does not match
	Login(ctx context.Context, username string, password string) (models.User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type Config struct {
	// Where the access token is set and read from
	// Defaults are used if not set
	AccessHeaderName string
	AccessAuthScheme string
	AccessCookieName string
}

type AuthService struct {
	tokens *tokenmanager.TokenManager
	users  userService

	accessHeaderName string
	accessAuthScheme string
	accessCookieName string
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, users userService) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.AccessCookieName, defaultAccessCookieName)

	return &AuthService{
		tokens:           tokens,
		users:            users,
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		accessCookieName: cfg.AccessCookieName,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	user, err := s.users.Register(ctx, username, password)
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	user, err := s.users.Login(ctx, username, password)
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(user)
}

func (s *AuthService) issue(user models.User) (models.IssuedToken, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return token, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return token, nil
}

// Set access token to response header and cookie
func (s *AuthService) SetToken(w http.ResponseWriter, token models.IssuedToken) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+token.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.accessCookieName,
		Value:    token.Value,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Authenticate the request: header is preferred over cookie
// The user is re-read so deleted owners lose access immediately
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := s.readAccess(r)
	if err != nil {
		return models.User{}, err
	}

	claims, err := s.tokens.Parse(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return user, fmt.Errorf("%w: owner does not exist", apperrors.ErrTokenInvalid)
	}

	return user, err
}

func (s *AuthService) readAccess(r *http.Request) (string, error) {
	if header := r.Header.Get(s.accessHeaderName); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" {
			return "", fmt.Errorf("%w: malformed %s header", apperrors.ErrTokenInvalid, s.accessHeaderName)
		}
		return token, nil
	}

	cookie, err := r.Cookie(s.accessCookieName)
	if err != nil {
		return "", fmt.Errorf("%w: no access token", apperrors.ErrTokenInvalid)
	}

	return cookie.Value, nil
}
