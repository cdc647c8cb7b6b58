// Package jwt issues and verifies the signed session tokens carried in the
// auth cookie. Tokens are stateless: nothing is stored server side, so a
// token stays valid until it expires or the secret changes.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is the lifetime of a session token.
const DefaultTTL = time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the token payload.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// WithClock replaces time.Now, which lets tests move past expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt: empty signing secret")
	}

	c := &Codec{
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ttl <= 0 {
		return nil, fmt.Errorf("jwt: non-positive ttl %s", c.ttl)
	}

	return c, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for userID that expires TTL after now.
func (c *Codec) Issue(userID int64) (string, error) {
	now := c.now()

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return tokenString, nil
}

// Verify returns the user id carried by tokenString. It fails with
// ErrExpiredToken once now reaches the expiry, and with ErrInvalidToken for
// anything that does not check out: signature, algorithm, payload shape.
func (c *Codec) Verify(tokenString string) (int64, error) {
	var claims Claims

	// Expiry is checked below against the codec clock, not the package one.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID <= 0 || claims.ExpiresAt == nil {
		return 0, ErrInvalidToken
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return 0, ErrExpiredToken
	}

	return claims.UserID, nil
}
