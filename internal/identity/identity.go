// Package identity provides per-device learner identity, optionally bound
// to a connected wallet address.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/store"
)

const (
	AnonCookieName        = "chaincademy_anon_id"
	WalletHeaderName      = "X-Wallet-Address"
	SessionHeaderName     = "X-Chaincademy-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	sessionIDKey
	walletKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	walletPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WalletFromContext extracts the connected wallet address, if any.
func WalletFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(walletKey).(string); ok {
		return v
	}
	return ""
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

// IsValidWallet reports whether the value is a checksummable EVM address
// shape (0x + 40 hex). Checksum verification is the wallet provider's job.
func IsValidWallet(addr string) bool {
	return walletPattern.MatchString(addr)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func deriveUsername(userID, wallet string) string {
	if wallet != "" && len(wallet) >= 10 {
		return wallet[:6] + "…" + wallet[len(wallet)-4:]
	}
	if len(userID) > 13 {
		return "learner-" + userID[len(userID)-8:]
	}
	return "learner"
}

func ensureUser(ctx context.Context, repo store.Repository, userID, wallet string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user != nil {
		// Bind the wallet on first connect.
		if wallet != "" && user.WalletAddress != wallet {
			user.WalletAddress = wallet
			user.Username = deriveUsername(userID, wallet)
			user.UpdatedAt = time.Now()
			return repo.UpsertUser(ctx, user)
		}
		return repo.UpdateLastSeen(ctx, userID, time.Now())
	}

	now := time.Now()
	if err := repo.UpsertUser(ctx, &domain.User{
		UserID:        userID,
		Username:      deriveUsername(userID, wallet),
		WalletAddress: wallet,
		LastSeenAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return err
	}

	slog.Info("New learner identity", "user_id", userID, "wallet_bound", wallet != "")
	return nil
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}

	setAnonCookie(w, id, isDev)
	return id, nil
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

func walletFromRequest(r *http.Request) string {
	addr := strings.TrimSpace(r.Header.Get(WalletHeaderName))
	if addr == "" {
		addr = strings.TrimSpace(r.URL.Query().Get("wallet"))
	}
	if !IsValidWallet(addr) {
		return ""
	}
	return strings.ToLower(addr)
}

// Middleware injects learner identity and per-request session ID. A valid
// wallet address header binds the identity to that wallet; otherwise an
// anonymous cookie identity is issued.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wallet := walletFromRequest(r)

			userID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				slog.Error("Failed to establish identity", "error", err, "ip", IPFromRequest(r))
				http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), repo, userID, wallet); err != nil {
				slog.Error("Failed to initialize user", "error", err, "user_id", userID, "ip", IPFromRequest(r))
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			username := deriveUsername(userID, wallet)
			sessionID := sessionIDFromRequest(r)

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, usernameKey, username)
			ctx = context.WithValue(ctx, sessionIDKey, sessionID)
			ctx = context.WithValue(ctx, walletKey, wallet)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
