package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin may train and activate models
const RoleAdmin = "admin"

// ContextUserID is the gin context key holding the caller's subject
const ContextUserID = "user_id"

// TokenClaims are the claims of an access token
type TokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// TokenValidator is an interface for validating JWT tokens
type TokenValidator interface {
	ValidateToken(token string) (*TokenClaims, error)
}

// JWT signs and validates HS256 tokens with a shared secret
type JWT struct {
	secret []byte
}

// NewJWT creates a JWT for secret
func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// IssueToken signs a token for subject with role, valid for ttl
func (j *JWT) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// ValidateToken parses token and checks its signature and expiry
func (j *JWT) ValidateToken(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearer(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func deny(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// OptionalAuth records the caller's subject when a valid token is present
// and lets anonymous requests through
func OptionalAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c); ok && validator != nil {
			if claims, err := validator.ValidateToken(token); err == nil {
				c.Set(ContextUserID, claims.Subject)
			}
		}
		c.Next()
	}
}

// AdminAuth admits only callers holding a valid admin token
func AdminAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			deny(c, http.StatusUnauthorized, CodeUnauthorized, "missing or malformed authorization header")
			return
		}
		if validator == nil {
			deny(c, http.StatusForbidden, CodeForbidden, "administration is disabled")
			return
		}
		claims, err := validator.ValidateToken(token)
		if err != nil {
			deny(c, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
			return
		}
		if claims.Role != RoleAdmin {
			deny(c, http.StatusForbidden, CodeForbidden, "admin role required")
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}
