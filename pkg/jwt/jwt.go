// Package jwt issues and validates the HS256 bearer tokens shared with the authority.
package jwt

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptySubject is returned when the subject is empty.
	ErrEmptySubject = errors.New("subject cannot be empty")
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")
)

// Roles understood by the control plane.
const (
	RoleAdministrator = "administrator"
	RoleCollector     = "collector"
	RoleUser          = "user"
)

// ValidRoles lists every known role.
var ValidRoles = []string{RoleAdministrator, RoleCollector, RoleUser}

// CommandRoles may issue mutating commands.
var CommandRoles = []string{RoleAdministrator, RoleCollector}

// IsValidRole reports whether role is known.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}

// Claims is the token payload. The subject is the operator's username.
type Claims struct {
	Role string `json:"role"`

	jwt.RegisteredClaims
}

// Username returns the subject claim.
func (c *Claims) Username() string {
	return c.Subject
}

// CanCommand reports whether the role may issue mutating commands.
func (c *Claims) CanCommand() bool {
	return slices.Contains(CommandRoles, c.Role)
}

// TokenConfig configures a Generator.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Duration time.Duration
}

// Generator signs and validates tokens with a shared secret.
type Generator struct {
	config TokenConfig
}

// NewGenerator creates a new token generator.
func NewGenerator(config TokenConfig) *Generator {
	if config.Duration <= 0 {
		config.Duration = time.Hour
	}
	return &Generator{config: config}
}

// Generate signs a token for username with role.
func (g *Generator) Generate(username, role string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	if !IsValidRole(role) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := time.Now()
	expiresAt := now.Add(g.config.Duration)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate validates tokenString against the generator's secret.
func (g *Generator) Validate(tokenString string) (*Claims, error) {
	return ValidateToken(tokenString, g.config.Secret)
}

// ValidateToken validates the token and returns the claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken signs a token expiring after expiry, which may be negative.
// Used by tests and tooling.
func GenerateToken(username, role, secret string, expiry time.Duration) (string, error) {
	if username == "" {
		return "", ErrEmptySubject
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
