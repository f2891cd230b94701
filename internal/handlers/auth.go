package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/models"
	"github.com/maneesh/docsync/internal/session"
)

const minPasswordLength = 8

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserStoreProvider returns the account store, connecting on first use
type UserStoreProvider func(ctx context.Context) (UserStore, error)

// RegisterRequest is the body of POST /api/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MeResponse reports the caller's session state
type MeResponse struct {
	UserID        string `json:"userId,omitempty"`
	Authenticated bool   `json:"authenticated"`
	TokenExists   bool   `json:"tokenExists"`
	Fallback      bool   `json:"fallback"`
}

// AuthHandler issues and clears session cookies
type AuthHandler struct {
	users        UserStoreProvider
	tokens       *session.TokenService
	resolver     *session.Resolver
	cookieSecure bool
	bcryptCost   int
	logger       *slog.Logger
}

// NewAuthHandler creates the account endpoints
func NewAuthHandler(users UserStoreProvider, tokens *session.TokenService, resolver *session.Resolver, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		resolver:     resolver,
		cookieSecure: cookieSecure,
		bcryptCost:   bcrypt.DefaultCost,
		logger:       logger.With(slog.String("component", "auth")),
	}
}

// Register handles POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.register"

	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)

	if req.Name == "" {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, op, "Name is required"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, op, "A valid email is required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, op, "Password must be at least 8 characters"))
		return
	}

	users, err := h.users(r.Context())
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.Internal, op, err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.Internal, op, err))
		return
	}

	user, err := users.CreateUser(r.Context(), req.Name, req.Email, string(hash))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if !h.issue(w, r, user.ID) {
		return
	}
	h.logger.Info("user registered", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.login"
	invalid := apperr.New(apperr.Unauthorized, op, "Invalid credentials")

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	users, err := h.users(r.Context())
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.Internal, op, err))
		return
	}

	user, err := users.FindUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			writeError(w, r, h.logger, invalid)
			return
		}
		writeError(w, r, h.logger, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, r, h.logger, invalid)
		return
	}

	if !h.issue(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, h.cookieSecure)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Me handles GET /api/auth/me. It never fails for anonymous callers.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	resp := MeResponse{TokenExists: session.CredentialFromRequest(r) != ""}
	if id, err := h.resolver.Resolve(r); err == nil {
		resp.UserID = id.Subject
		resp.Authenticated = true
		resp.Fallback = id.Fallback
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, userID string) bool {
	token, err := h.tokens.Issue(userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	session.SetCookie(w, token, h.cookieSecure)
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
