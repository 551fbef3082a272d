package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	identityApp "github.com/subtrackhq/subtrack/internal/identity/application"
	identityDomain "github.com/subtrackhq/subtrack/internal/identity/domain"
)

// IdentityService is the slice of the identity application the API needs.
type IdentityService interface {
	Register(ctx context.Context, input identityApp.RegisterInput) (*identityDomain.User, error)
	Login(ctx context.Context, email, password string) (*identityDomain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*identityDomain.User, error)
}

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

// AuthHandler handles registration, login, and the current-user endpoint.
type AuthHandler struct {
	identity IdentityService
	issuer   TokenIssuer
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(identity IdentityService, issuer TokenIssuer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{identity: identity, issuer: issuer, logger: logger}
}

type userResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toUserResponse(user *identityDomain.User) userResponse {
	return userResponse{
		ID:          user.ID(),
		Email:       user.Email().String(),
		FirstName:   user.FirstName().String(),
		LastName:    user.LastName().String(),
		IsActive:    user.IsActive(),
		LastLoginAt: user.LastLoginAt(),
		CreatedAt:   user.CreatedAt(),
	}
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.identity.Register(r.Context(), identityApp.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, identityDomain.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "Email is already registered")
		case errors.Is(err, identityDomain.ErrInvalidEmail),
			errors.Is(err, identityDomain.ErrEmptyName),
			errors.Is(err, identityDomain.ErrNameTooLong),
			errors.Is(err, identityApp.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to register user", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to register")
		}
		return
	}

	token, err := h.issuer.Issue(user.ID())
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identityDomain.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, identityDomain.ErrUserDeactivated):
			writeError(w, http.StatusForbidden, "Account is deactivated")
		default:
			h.logger.Error("failed to log in user", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to log in")
		}
		return
	}

	token, err := h.issuer.Issue(user.ID())
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}

// Me handles GET /api/v1/users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, identityDomain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
