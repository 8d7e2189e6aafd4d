package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenTTL = 24 * 365 * time.Hour
	tokenIssuer     = "healthtracker"
)

var ErrInvalidToken = errors.New("invalid profile token")

// Claims of a profile token. A profile stands for one browser profile: it scopes the
// account catalog, the active session and the dashboard records.
type Claims struct {
	jwt.RegisteredClaims
	ProfileID string `json:"pid"`
}

type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration

	// ability to inject the clock and the id generator (for unit testing)
	Clock        func() time.Time
	NewProfileID func() string
}

func NewTokenIssuer(secretKey string, ttl time.Duration) (*TokenIssuer, error) {
	if secretKey == "" {
		return nil, errors.New("token secret key is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secretKey:    []byte(secretKey),
		ttl:          ttl,
		Clock:        time.Now,
		NewProfileID: uuid.NewString,
	}, nil
}

// Issue creates a new profile and returns its id together with the signed token.
func (i *TokenIssuer) Issue() (profileID string, token string, err error) {
	profileID = i.NewProfileID()
	now := i.Clock()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		ProfileID: profileID,
	}).SignedString(i.secretKey)
	if err != nil {
		return "", "", fmt.Errorf("sign profile token: %w", err)
	}

	return profileID, signed, nil
}

// Parse verifies the token and returns the profile it was issued for.
func (i *TokenIssuer) Parse(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.Clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ProfileID == "" {
		return "", ErrInvalidToken
	}

	return claims.ProfileID, nil
}
