package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/service"
	"github.com/Tzesh/EcommerceAPI/pkg/httputil"
	"github.com/Tzesh/EcommerceAPI/pkg/middleware"
)

// UserService is the part of service.UserService the handlers need.
type UserService interface {
	GetProfile(ctx context.Context, username string) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor string, in service.UpdateProfileInput) (*domain.User, error)
	DeleteUser(ctx context.Context, actor, username, telephone string) (*domain.User, error)
}

// UserHandler handles HTTP requests for user profile endpoints.
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// UpdateProfileRequest is the JSON request body for updating the caller's profile.
type UpdateProfileRequest struct {
	Password    string `json:"password" validate:"required,min=8,max=128"`
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Telephone   string `json:"telephone" validate:"required,telephone"`
	AccountType string `json:"accountType" validate:"required,oneof=CUSTOMER COMPANY"`
}

// DeleteUserRequest identifies the user to delete.
type DeleteUserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Telephone string `json:"telephone" validate:"required,telephone"`
}

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), middleware.UsernameFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), middleware.UsernameFromContext(r.Context()), service.UpdateProfileInput{
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

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// DeleteUser handles DELETE /api/v1/users
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.service.DeleteUser(r.Context(), middleware.UsernameFromContext(r.Context()), req.Username, req.Telephone)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}
