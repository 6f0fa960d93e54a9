package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("admin: unauthorized")

// TokenValidator checks a bearer token presented to mutating routes.
type TokenValidator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty token rejects all.
type StaticToken string

func (s StaticToken) Validate(token string) error {
	if s == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// requireToken rejects requests whose Authorization bearer token fails v.
func requireToken(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || v.Validate(strings.TrimSpace(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}
