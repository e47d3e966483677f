package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/httpmocker/httpmocker/pkg/httputil"
)

// TokenIssuer is the iss claim of controller tokens.
const TokenIssuer = "httpmocker"

// ErrUnauthorized is returned for missing or invalid bearer tokens.
var ErrUnauthorized = errors.New("unauthorized")

// NewToken signs an HS256 token for subject. A zero ttl yields a token that
// does not expire.
func NewToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   TokenIssuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks the signature, issuer and expiry of token.
func VerifyToken(secret, token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims, nil
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.opts.AuthSecret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="httpmocker"`)
			httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		claims, err := VerifyToken(s.opts.AuthSecret, strings.TrimSpace(raw))
		if err != nil {
			s.log.Warn("rejected token", "remote", r.RemoteAddr, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="httpmocker", error="invalid_token"`)
			httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		s.log.Debug("authorized", "subject", claims.Subject)
		next.ServeHTTP(w, r)
	})
}
