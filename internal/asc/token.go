package asc

import (
	"context"
	"crypto/ecdsa"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crypto/x509"
)

const (
	tokenAudience = "appstoreconnect-v1"
	tokenLifetime = 20 * time.Minute

	// reuse a minted token until this close to expiry
	tokenExpiryMargin = 30 * time.Second
)

// TokenProvider supplies bearer tokens for API requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// JWTProvider mints short-lived ES256 tokens from an App Store Connect API
// key and caches them until shortly before expiry. Safe for concurrent use.
type JWTProvider struct {
	keyID    string
	issuerID string
	key      *ecdsa.PrivateKey
	now      func() time.Time

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// NewJWTProvider parses a PEM-encoded PKCS#8 private key (the contents of
// an AuthKey_XXXXXXXXXX.p8 file) and returns a provider for it.
func NewJWTProvider(keyID, issuerID string, keyPEM []byte) (*JWTProvider, error) {
	if keyID == "" || issuerID == "" {
		return nil, errors.New("key id and issuer id are required")
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an ECDSA key")
	}

	return &JWTProvider{keyID: keyID, issuerID: issuerID, key: ecKey, now: time.Now}, nil
}

// NewJWTProviderFromFile reads the key file at path and calls NewJWTProvider.
func NewJWTProviderFromFile(keyID, issuerID, path string) (*JWTProvider, error) {
	keyPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return NewJWTProvider(keyID, issuerID, keyPEM)
}

// Token returns a cached token if still valid, otherwise mints a new one.
func (p *JWTProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached != "" && now.Before(p.expiry.Add(-tokenExpiryMargin)) {
		return p.cached, nil
	}

	expiry := now.Add(tokenLifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": p.issuerID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(expiry),
		"aud": tokenAudience,
	})
	token.Header["kid"] = p.keyID

	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	p.cached = signed
	p.expiry = expiry
	return signed, nil
}
