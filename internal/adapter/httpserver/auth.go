package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/opcdev/opc-evaluator/internal/config"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

const authCookie = "auth_token"

// sessionTTL bounds how long a login stays valid.
const sessionTTL = 24 * time.Hour

// AuthHandler owns the single-advisor login flow: bcrypt-checked credentials
// exchanged for an HS256 JWT in an HttpOnly cookie.
type AuthHandler struct {
	cfg config.Config
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("invalid body: %w", domain.ErrInvalidArgument), nil)
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(req.Email)), []byte(strings.ToLower(h.cfg.AdvisorEmail))) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdvisorPasswordHash), []byte(req.Password))
	if !emailOK || passErr != nil {
		LoggerFrom(r).Warn("login rejected", "email", req.Email)
		writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: apiError{
			Code:    "UNAUTHORIZED",
			Message: "invalid credentials",
		}})
		return
	}

	token, err := h.issueToken()
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  h.cfg.AdvisorName,
		"email": h.cfg.AdvisorEmail,
	})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Me returns the logged-in advisor profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  h.cfg.AdvisorName,
		"email": h.cfg.AdvisorEmail,
	})
}

func (h *AuthHandler) issueToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": h.cfg.AdvisorEmail,
		"iat": now.Unix(),
		"exp": now.Add(sessionTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(h.cfg.SessionSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (h *AuthHandler) validToken(raw string) bool {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(h.cfg.SessionSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}

// Guard enforces the session cookie on protected routes. With auth stubbed
// (dev) or not configured, requests pass through.
func (h *AuthHandler) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.AuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(authCookie)
		if err != nil || !h.validToken(cookie.Value) {
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: apiError{
				Code:    "UNAUTHORIZED",
				Message: "authentication required",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
