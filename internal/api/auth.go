package api

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/flowry/internal/config"
)

var (
	ErrMissingToken = errors.New("Authorization token required")
	ErrInvalidToken = errors.New("Invalid or expired token")
)

// maxVerified bounds the cache of keys that already passed bcrypt
const maxVerified = 1024

// Authenticator resolves bearer tokens to owners.
// API keys are checked against bcrypt hashes, anything else is tried as an HS256 JWT.
type Authenticator struct {
	keys   []config.APIKey
	secret []byte
	issuer string
	ttl    time.Duration

	mu       sync.Mutex
	verified map[[sha256.Size]byte]string
}

// NewAuthenticator creates an authenticator from the API keys and JWT settings
func NewAuthenticator(keys []config.APIKey, auth config.AuthConfig) *Authenticator {
	return &Authenticator{
		keys:     keys,
		secret:   []byte(auth.JWTSecret),
		issuer:   auth.Issuer,
		ttl:      auth.TokenTTL,
		verified: make(map[[sha256.Size]byte]string),
	}
}

// Authenticate returns the owner a token belongs to
func (a *Authenticator) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	if owner, ok := a.checkKey(token); ok {
		return owner, nil
	}

	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}
	return a.parseToken(token)
}

func (a *Authenticator) checkKey(token string) (string, bool) {
	if len(a.keys) == 0 {
		return "", false
	}

	sum := sha256.Sum256([]byte(token))
	a.mu.Lock()
	owner, ok := a.verified[sum]
	a.mu.Unlock()
	if ok {
		return owner, true
	}

	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			a.mu.Lock()
			if len(a.verified) >= maxVerified {
				clear(a.verified)
			}
			a.verified[sum] = k.Owner
			a.mu.Unlock()
			return k.Owner, true
		}
	}
	return "", false
}

func (a *Authenticator) parseToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}

	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", ErrInvalidToken
}

// IssueToken mints an HS256 token for owner valid for the configured TTL
func (a *Authenticator) IssueToken(owner string, now time.Time) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("auth.jwt_secret is not configured")
	}
	if owner == "" {
		return "", fmt.Errorf("owner is required")
	}

	claims := jwt.MapClaims{
		"user_id": owner,
		"iat":     now.Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	if a.ttl > 0 {
		claims["exp"] = now.Add(a.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// HashKey returns the bcrypt hash to put in api.keys
func HashKey(key string) (string, error) {
	if len(key) < 16 {
		return "", fmt.Errorf("key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
