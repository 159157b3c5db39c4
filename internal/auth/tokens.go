// Package auth issues and verifies the bearer tokens handed out per profile.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed
	// with another key.
	ErrInvalidToken = errors.New("invalid token")
	ErrWeakSecret   = errors.New("jwt secret must not be empty")
)

// ProfileClaims binds a token to one profile.
type ProfileClaims struct {
	jwt.RegisteredClaims
	ProfileID int64 `json:"profileId"`
}

// TokenIssuer signs HS256 tokens carrying the profile id.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer. A zero ttl issues tokens without expiry.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrWeakSecret
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for profileID.
func (i *TokenIssuer) Issue(profileID int64) (string, error) {
	now := i.now().UTC()
	claims := ProfileClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  strconv.FormatInt(profileID, 10),
			Issuer:   i.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		ProfileID: profileID,
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry and issuer and returns the profile id.
func (i *TokenIssuer) Verify(tokenString string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ProfileClaims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ProfileClaims)
	if !ok || !token.Valid || claims.ProfileID <= 0 {
		return 0, ErrInvalidToken
	}
	return claims.ProfileID, nil
}

// ParseTTL accepts a Go duration ("36h"), a day count ("7d") or plain seconds
// ("3600"). Empty means no expiry.
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("token ttl must not be negative: %q", value)
		}
		return time.Duration(secs) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid token ttl %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid token ttl %q", value)
	}
	return d, nil
}
