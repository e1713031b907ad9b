// Package middleware provides various middleware functionality.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	secretary "github.com/danilovkiri/dk-go-settler/internal/service/secretary/v1"
)

// TokenHandler sets object structure.
type TokenHandler struct {
	sec secretary.Secretary
	cfg *config.SecretConfig
}

// NewTokenHandler initializes a new token handler.
func NewTokenHandler(sec secretary.Secretary, cfg *config.SecretConfig) (*TokenHandler, error) {
	if sec == nil {
		return nil, errors.New("nil secretary object was found")
	}
	return &TokenHandler{
		sec: sec,
		cfg: cfg,
	}, nil
}

// TokenHandle provides token handling functionality.
func (c *TokenHandler) TokenHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := c.claims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminHandle provides admin role enforcement on top of token handling.
func (c *TokenHandler) AdminHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := c.claims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.Role != modelclaims.RoleAdmin {
			http.Error(w, "Admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *TokenHandler) claims(r *http.Request) (*modelclaims.MyCustomClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) == 0 {
		return nil, errors.New("token authorization required")
	}
	tokenString = strings.Replace(tokenString, "Bearer ", "", 1)
	return c.sec.ValidateToken(tokenString)
}
