package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKey is returned when a token's kid matches no configured or
// fetched verification key.
var ErrUnknownKey = errors.New("auth: no verification key for token")

// JWTConfig configures a JWTVerifier.
type JWTConfig struct {
	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must match one of the token's aud values.
	Audience string

	// Keys maps kid to a static verification key: []byte for HMAC,
	// *rsa.PublicKey for RSA.
	Keys map[string]any

	// JWKSURL, when set, is fetched to resolve kids absent from Keys.
	JWKSURL string

	// HTTPClient performs JWKS fetches. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// RefreshMinInterval bounds how often the key set is re-fetched on an
	// unknown kid (default 1 minute).
	RefreshMinInterval time.Duration
}

// JWTVerifier verifies JWT bearer tokens against a key set, optionally kept
// fresh from a remote JWKS endpoint. The key set is shared across concurrent
// invocations; refreshes replace it atomically under the lock.
type JWTVerifier struct {
	cfg    JWTConfig
	client *http.Client

	mu          sync.RWMutex
	keys        map[string]any
	lastRefresh time.Time
}

// NewJWTVerifier creates a verifier from cfg.
func NewJWTVerifier(cfg JWTConfig) *JWTVerifier {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.RefreshMinInterval <= 0 {
		cfg.RefreshMinInterval = time.Minute
	}
	keys := make(map[string]any, len(cfg.Keys))
	for kid, key := range cfg.Keys {
		keys[kid] = key
	}
	return &JWTVerifier{cfg: cfg, client: client, keys: keys}
}

// Verify parses and verifies raw and extracts the principal.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.keyFor(ctx, token)
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: token rejected: %w", err)
	}

	p := Principal{Claims: claims, Scopes: scopesFromClaims(claims)}
	if sub, err := claims.GetSubject(); err == nil {
		p.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.Expiry = exp.Time
	}
	return p, nil
}

// keyFor resolves the verification key for token's kid, refreshing from the
// JWKS endpoint once when the kid is unknown.
func (v *JWTVerifier) keyFor(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)

	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	if v.cfg.JWKSURL == "" {
		return nil, fmt.Errorf("%w (kid %q)", ErrUnknownKey, kid)
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w (kid %q after refresh)", ErrUnknownKey, kid)
	}
	return key, nil
}

// refresh fetches the remote key set, rate-limited by RefreshMinInterval.
func (v *JWTVerifier) refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if time.Since(v.lastRefresh) < v.cfg.RefreshMinInterval {
		return nil
	}
	v.lastRefresh = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("auth: jwks request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: jwks fetch returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("auth: jwks decode: %w", err)
	}

	for _, k := range doc.Keys {
		key, err := k.publicKey()
		if err != nil {
			continue // skip unusable entries, keep the rest
		}
		v.keys[k.Kid] = key
	}
	return nil
}

// jwk is the subset of RFC 7517 this verifier understands.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	K   string `json:"k"`
}

func (k jwk) publicKey() (any, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "oct":
		return base64.RawURLEncoding.DecodeString(k.K)
	default:
		return nil, fmt.Errorf("unsupported kty %q", k.Kty)
	}
}
