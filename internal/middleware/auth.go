package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/medlink-health/medlink-api/internal/utils"
)

// AuthClaims is the verified identity assertion extracted from a bearer
// token: the identity provider's stable subject id plus group memberships.
type AuthClaims struct {
	Subject string
	Groups  []string
}

// TokenVerifier checks a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (AuthClaims, error)
}

type identityClaims struct {
	jwt.RegisteredClaims
	CognitoGroups []string `json:"cognito:groups"`
	Groups        []string `json:"groups"`
}

func (c identityClaims) groups() []string {
	if len(c.CognitoGroups) > 0 {
		return c.CognitoGroups
	}
	return c.Groups
}

// JWKSVerifier validates RS256 tokens against the identity provider's
// published signing keys, cached and refreshed on unknown key ids.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	issuer string
}

// NewJWKSVerifier fetches the provider's JWKS and keeps it refreshed in the
// background. An empty issuer skips issuer validation.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   5 * time.Minute,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity provider jwks: %w", err)
	}

	return &JWKSVerifier{jwks: jwks, issuer: issuer}, nil
}

// Verify parses and validates the token signature and issuer.
func (v *JWKSVerifier) Verify(tokenString string) (AuthClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	var claims identityClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, v.jwks.Keyfunc, options...)
	if err != nil || !token.Valid {
		return AuthClaims{}, fmt.Errorf("invalid token")
	}

	return AuthClaims{Subject: claims.Subject, Groups: claims.groups()}, nil
}

// HMACVerifier validates HS256 tokens with a shared secret. It exists for
// local development and tests where no identity provider is reachable.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier constructs a shared-secret verifier.
func NewHMACVerifier(secret string) HMACVerifier {
	return HMACVerifier{secret: []byte(secret)}
}

// Verify parses and validates an HS256 token.
func (v HMACVerifier) Verify(tokenString string) (AuthClaims, error) {
	var claims identityClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return AuthClaims{}, fmt.Errorf("invalid token")
	}

	return AuthClaims{Subject: claims.Subject, Groups: claims.groups()}, nil
}

// Protected returns a middleware that requires a valid bearer token. The
// token arrives in the Authorization header, or in the "token" query
// parameter for websocket handshakes where headers are awkward to set.
func Protected(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil || claims.Subject == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals("auth_subject", claims.Subject)
		c.Locals("auth_groups", claims.Groups)

		return c.Next()
	}
}

// ClaimsFromCtx returns the verified claims bound to the request, if any.
func ClaimsFromCtx(c *fiber.Ctx) (AuthClaims, bool) {
	subject, ok := c.Locals("auth_subject").(string)
	if !ok || subject == "" {
		return AuthClaims{}, false
	}

	claims := AuthClaims{Subject: subject}
	if groups, ok := c.Locals("auth_groups").([]string); ok {
		claims.Groups = groups
	}
	return claims, true
}

func bearerToken(c *fiber.Ctx) string {
	authorization := c.Get("Authorization")
	const bearer = "bearer "
	if len(authorization) > len(bearer) && strings.EqualFold(authorization[:len(bearer)], bearer) {
		return strings.TrimSpace(authorization[len(bearer):])
	}

	return strings.TrimSpace(c.Query("token"))
}
