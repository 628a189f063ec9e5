package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates no credential was supplied.
	ErrMissingToken = errors.New("missing authentication token")
	// ErrInvalidToken indicates the credential failed signature, expiry or
	// identity resolution.
	ErrInvalidToken = errors.New("invalid authentication token")
)

// UserResolver is the external user collaborator: it confirms that an
// identity extracted from a credential actually exists. User record storage
// lives outside this service.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) error
}

// AllowAllResolver accepts any non-empty identity. Used when the user
// service is fronted elsewhere and tokens are trusted as issued.
type AllowAllResolver struct{}

func (AllowAllResolver) Resolve(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidToken
	}
	return nil
}

// Claims is the payload carried inside an access token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials at connection-open time. It is
// a single synchronous gate per connection (or per REST request); it never
// runs per-message.
type Authenticator struct {
	secret   []byte
	ttl      time.Duration
	resolver UserResolver
}

// NewAuthenticator creates an authenticator with the given signing secret
// and user collaborator.
func NewAuthenticator(secret []byte, ttl time.Duration, resolver UserResolver) *Authenticator {
	return &Authenticator{secret: secret, ttl: ttl, resolver: resolver}
}

// GenerateToken creates a signed HS256 token for a user. Exposed for tests
// and tooling; token issuance normally belongs to the user service.
func (a *Authenticator) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "hackmatch",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks signature and expiry, then resolves the embedded identity
// through the user collaborator. On any failure the caller must reject the
// connection before further handlers run; no partial state is created.
func (a *Authenticator) Verify(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	if err := a.resolver.Resolve(ctx, claims.UserID); err != nil {
		return "", fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}

	return claims.UserID, nil
}

const identityKey = "identity"

// Middleware returns a gin middleware enforcing a Bearer token on the REST
// surface and stashing the verified identity in the request context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == tokenString {
			tokenString = ""
		}

		userID, err := a.Verify(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "authentication required"})
			return
		}

		c.Set(identityKey, userID)
		c.Next()
	}
}

// identityFrom returns the authenticated identity set by Middleware
func identityFrom(c *gin.Context) string {
	return c.GetString(identityKey)
}
