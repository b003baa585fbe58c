package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session token lifetime when the caller sets no expiry.
const DefaultTTL = 24 * time.Hour

// Claims represents the identity contained in a session token.
type Claims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Exp     int64  `json:"-"`
	Iat     int64  `json:"-"`
}

type tokenClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

var (
	errMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// SignJWT signs the given claims with HS256 using the configured secret.
func SignJWT(claims Claims) (string, error) {
	secret, err := secretKey()
	if err != nil {
		return "", err
	}
	if claims.Sub == "" {
		return "", errors.New("sub is required")
	}

	now := time.Now().UTC()
	iat := now
	if claims.Iat != 0 {
		iat = time.Unix(claims.Iat, 0)
	}
	exp := now.Add(DefaultTTL)
	if claims.Exp != 0 {
		exp = time.Unix(claims.Exp, 0)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Sub,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	return token.SignedString(secret)
}

// VerifyJWT verifies a token and returns its claims.
func VerifyJWT(token string) (Claims, error) {
	secret, err := secretKey()
	if err != nil {
		return Claims{}, err
	}

	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || tc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		Sub:     tc.Subject,
		Email:   tc.Email,
		Name:    tc.Name,
		Picture: tc.Picture,
	}
	if tc.ExpiresAt != nil {
		out.Exp = tc.ExpiresAt.Unix()
	}
	if tc.IssuedAt != nil {
		out.Iat = tc.IssuedAt.Unix()
	}
	return out, nil
}

func secretKey() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	if env == "production" || env == "prod" {
		if secret == "" {
			return nil, fmt.Errorf("%w: JWT_SECRET required in production", errMissingSecret)
		}
	}
	if secret == "" {
		secret = "dev-secret"
	}
	return []byte(secret), nil
}
