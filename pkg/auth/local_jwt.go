package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the user snapshot carried by an identity-provider token
type Identity struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// IdentityClaims represents the JWT token claims
type IdentityClaims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Picture           string `json:"picture"`
	jwt.RegisteredClaims
}

// IdentityVerifier verifies HMAC-signed identity tokens
type IdentityVerifier struct {
	SecretKey []byte
	Issuer    string        // checked when non-empty
	Expiry    time.Duration // lifetime of issued tokens, default 1 hour
}

// NewIdentityVerifier creates a verifier for tokens signed with secretKey
func NewIdentityVerifier(secretKey, issuer string) (*IdentityVerifier, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	return &IdentityVerifier{
		SecretKey: []byte(secretKey),
		Issuer:    issuer,
		Expiry:    time.Hour,
	}, nil
}

// Verify parses tokenString and returns the identity it carries. The
// subject claim is the user id and is mandatory.
func (v *IdentityVerifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.SecretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		UserID:   claims.Subject,
		Name:     claims.Name,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Picture:  claims.Picture,
	}, nil
}

// Issue signs a token for identity. Used by development tooling and tests;
// production tokens come from the identity provider.
func (v *IdentityVerifier) Issue(identity Identity) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Name:              identity.Name,
		PreferredUsername: identity.Username,
		Email:             identity.Email,
		Picture:           identity.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.Issuer,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
