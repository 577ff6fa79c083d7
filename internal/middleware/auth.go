package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"agency-chat-service/internal/models"
)

const identityContextKey = "identity"

// Claims are the chat-relevant JWT claims issued by the platform's auth
// layer.
type Claims struct {
	UserID   string `json:"user_id"`
	AgencyID string `json:"agency_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates a signed token and returns the caller identity.
func ParseToken(secret, token string) (models.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Identity{}, err
	}
	if !parsed.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	id := models.Identity{UserID: claims.UserID, AgencyID: claims.AgencyID, Role: claims.Role}
	if id.IsZero() {
		return models.Identity{}, errors.New("token missing identity claims")
	}
	return id, nil
}

// Auth validates the Authorization header and stores the caller identity in
// the request context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := val.(models.Identity)
	return identity, ok
}

// SetIdentity stores an identity in the gin context; used by tests.
func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityContextKey, identity)
}
