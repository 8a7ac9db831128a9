// @title Authgate API
// @version 1.0.0
// @description Authentication and authorization service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/identity"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/observability/metrics"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	authzService    *authz.Service
	orchestrator    *auth.Orchestrator
	auditLogger     audit.Logger
	loginCounters   *metrics.LoginCounters
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	authzService *authz.Service,
	orchestrator *auth.Orchestrator,
	auditLogger audit.Logger,
	loginCounters *metrics.LoginCounters,
) *Handler {
	return &Handler{
		identityService: identityService,
		authzService:    authzService,
		orchestrator:    orchestrator,
		auditLogger:     auditLogger,
		loginCounters:   loginCounters,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, requestDuration metric.Float64Histogram) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(MetricsMiddleware(requestDuration))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/auth/me", h.GetCurrentUser)

			// Product catalog
			r.With(h.RequirePermission(authz.PermProductRead)).Get("/products", h.ListProducts)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.With(h.RequirePermission(authz.PermUserRead)).Get("/", h.ListUsers)
				r.With(h.RequirePermission(authz.PermUserRead)).Get("/{username}", h.GetUser)
				r.With(h.RequirePermission(authz.PermUserUpdate)).Post("/{username}/unlock", h.UnlockUser)
			})

			// Role administration
			r.Route("/roles", func(r chi.Router) {
				r.Use(h.RequirePermission(authz.PermSystemManage))
				r.Post("/", h.CreateRole)
				r.Get("/{name}", h.GetRole)
				r.Delete("/{name}", h.DeactivateRole)
				r.Post("/{name}/permissions", h.GrantPermission)
				r.Delete("/{name}/permissions/{permission}", h.RevokePermission)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "authgate",
	})
}

// RegisterRequest represents registration data
type RegisterRequest struct {
	Username  string `json:"username" binding:"required" example:"jdoe"`
	Email     string `json:"email" binding:"required" example:"user@example.com"`
	Password  string `json:"password" binding:"required" example:"secret123"`
	FirstName string `json:"first_name" example:"John"`
	LastName  string `json:"last_name" example:"Doe"`
}

// UserResponse is the public view of a user account
type UserResponse struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	Status              string     `json:"status"`
	Enabled             bool       `json:"enabled"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	Roles               []string   `json:"roles"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toUserResponse(user *identity.User) UserResponse {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.Name)
	}
	return UserResponse{
		ID:                  user.ID,
		Username:            user.Username,
		Email:               user.Email,
		FirstName:           user.FirstName,
		LastName:            user.LastName,
		Status:              string(user.Status),
		Enabled:             user.Enabled,
		FailedLoginAttempts: user.FailedLoginAttempts,
		Roles:               roles,
		LastLoginAt:         user.LastLoginAt,
		CreatedAt:           user.CreatedAt,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user account with the default role
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Register(r.Context(), identity.RegisterParams{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to register user",
			logger.Error(err),
			logger.Username(req.Username),
		)

		switch {
		case errors.Is(err, identity.ErrDuplicateUser):
			respondError(w, http.StatusConflict, "username or email already taken")
		case errors.Is(err, identity.ErrInvalidUsername):
			respondError(w, http.StatusBadRequest, "username must be 3 to 50 characters")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password must be at least 6 characters")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"jdoe"`
	Password string `json:"password" binding:"required" example:"secret123"`
}

// LoginResponse carries the issued bearer token
type LoginResponse struct {
	Token string `json:"token"`
}

// Login handles user authentication
// @Summary Authenticate
// @Description Verify credentials and issue a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} map[string]string
// @Failure 423 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signed, err := h.orchestrator.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.WarnContext(r.Context(), "login failed",
			logger.Username(req.Username),
			logger.RemoteAddr(getIPAddress(r)),
			logger.Error(err),
		)

		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			if h.loginCounters != nil {
				h.loginCounters.Lockouts.Add(r.Context(), 1)
			}
			respondError(w, http.StatusLocked, "account is locked")
		case errors.Is(err, identity.ErrInvalidCredentials):
			if h.loginCounters != nil {
				h.loginCounters.Failure.Add(r.Context(), 1)
			}
			respondError(w, http.StatusUnauthorized, "invalid username or password")
		default:
			respondError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	if h.loginCounters != nil {
		h.loginCounters.Success.Add(r.Context(), 1)
	}

	respondJSON(w, http.StatusOK, LoginResponse{Token: signed})
}

// GetCurrentUser returns the authenticated principal
// @Summary Current user
// @Description Returns the account behind the presented token
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]string
// @Router /auth/me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.identityService.GetUser(r.Context(), principal.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "account no longer valid")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// ListProducts returns the product catalog
// @Summary List products
// @Description Sample protected resource demonstrating permission-gated access
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Success 200 {array} string
// @Failure 403 {object} map[string]string
// @Router /products [get]
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, []string{"Product 1", "Product 2", "Product 3"})
}

// ListUsers returns all user accounts
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse
// @Failure 403 {object} map[string]string
// @Router /users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.identityService.ListUsers(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list users", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	responses := make([]UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, toUserResponse(user))
	}
	respondJSON(w, http.StatusOK, responses)
}

// GetUser returns a single user account by username
// @Summary Get user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string
// @Router /users/{username} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.identityService.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// UnlockUser clears a lockout and reactivates the account
// @Summary Unlock user
// @Description Reset the failed-login counter and demote LOCKED to ACTIVE
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /users/{username}/unlock [post]
func (h *Handler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.identityService.Unlock(r.Context(), username); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to unlock user",
			logger.Username(username),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to unlock user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RoleRequest represents role creation data
type RoleRequest struct {
	Name        string   `json:"name" binding:"required" example:"AUDITOR"`
	Description string   `json:"description" example:"Read-only audit access"`
	Permissions []string `json:"permissions" example:"USER_READ"`
}

// RoleResponse is the public view of a role
type RoleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Active      bool     `json:"active"`
	Permissions []string `json:"permissions"`
}

func toRoleResponse(role *authz.Role) RoleResponse {
	permissions := role.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Active:      role.Active,
		Permissions: permissions,
	}
}

// CreateRole creates a new role
// @Summary Create role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RoleRequest true "Role Data"
// @Success 201 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /roles [post]
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.authzService.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrRoleAlreadyExists):
			respondError(w, http.StatusConflict, "role already exists")
		case errors.Is(err, authz.ErrInvalidRoleName):
			respondError(w, http.StatusBadRequest, "invalid role name")
		default:
			slog.ErrorContext(r.Context(), "failed to create role",
				logger.Role(req.Name),
				logger.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "failed to create role")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toRoleResponse(role))
}

// GetRole returns a role and its permission set
// @Summary Get role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param name path string true "Role name"
// @Success 200 {object} RoleResponse
// @Failure 404 {object} map[string]string
// @Router /roles/{name} [get]
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	role, err := h.authzService.GetRole(r.Context(), name)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get role")
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// DeactivateRole soft-deactivates a role
// @Summary Deactivate role
// @Description Deactivated roles stop contributing permissions but keep their assignments
// @Tags Roles
// @Security BearerAuth
// @Param name path string true "Role name"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /roles/{name} [delete]
func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.authzService.DeactivateRole(r.Context(), name); err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deactivate role")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PermissionRequest represents a permission grant
type PermissionRequest struct {
	Permission string `json:"permission" binding:"required" example:"USER_READ"`
}

// GrantPermission adds a permission to a role
// @Summary Grant permission
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Role name"
// @Param request body PermissionRequest true "Permission"
// @Success 200 {object} RoleResponse
// @Failure 404 {object} map[string]string
// @Router /roles/{name}/permissions [post]
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Permission == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.authzService.GrantPermission(r.Context(), name, req.Permission)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to grant permission")
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// RevokePermission removes a permission from a role
// @Summary Revoke permission
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param name path string true "Role name"
// @Param permission path string true "Permission"
// @Success 200 {object} RoleResponse
// @Failure 404 {object} map[string]string
// @Router /roles/{name}/permissions/{permission} [delete]
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	permission := chi.URLParam(r, "permission")

	role, err := h.authzService.RevokePermission(r.Context(), name, permission)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to revoke permission")
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
