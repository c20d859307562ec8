package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/service"
	"github.com/Tzesh/EcommerceAPI/pkg/httputil"
	"github.com/Tzesh/EcommerceAPI/pkg/middleware"
	"github.com/Tzesh/EcommerceAPI/pkg/validator"
)

// AuthService is the part of service.AuthService the handlers need.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, *domain.TokenPair, error)
	Login(ctx context.Context, in service.LoginInput) (*domain.TokenPair, error)
	Refresh(ctx context.Context, authorization string) (*domain.TokenPair, error)
	Authorize(ctx context.Context, actor string, in service.AuthorizeInput) (*domain.TokenPair, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Telephone   string `json:"telephone" validate:"required,telephone"`
	AccountType string `json:"accountType" validate:"required,oneof=CUSTOMER COMPANY"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthorizeRequest is the JSON request body for a role change.
type AuthorizeRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Role     string `json:"role" validate:"required,oneof=USER ADMIN"`
	Secret   string `json:"secret" validate:"required"`
}

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		Name:        req.Name,
		Telephone:   req.Telephone,
		AccountType: domain.AccountType(req.AccountType),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// RefreshToken handles POST /api/v1/auth/refresh-token. A missing or
// unusable refresh token yields 204 with no body.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.service.Refresh(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if tokens == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// Authorize handles POST /api/v1/auth/authorize
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := h.service.Authorize(r.Context(), middleware.UsernameFromContext(r.Context()), service.AuthorizeInput{
		Username: req.Username,
		Role:     domain.Role(req.Role),
		Secret:   req.Secret,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// decode reads and validates a JSON body into dst, writing the error
// response itself when it returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limitBody(w, r)
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "PAYLOAD_TOO_LARGE", Message: "request body too large"},
		})
		return false
	}
	httputil.WriteValidationError(w, err)
	return false
}
