// Package auth verifies caller-supplied bearer tokens and produces the
// principal the orchestrator attaches to invocation metadata before the
// pipeline runs. Cryptographic verification is delegated to
// github.com/golang-jwt/jwt; this package owns key selection and claim
// extraction only.
package auth

import (
	"context"
	"strings"
	"time"
)

// Principal is the verified caller identity.
type Principal struct {
	// Subject is the token's sub claim.
	Subject string

	// Scopes are the granted scopes, from a space-separated "scope" claim or
	// a "scopes" string array.
	Scopes []string

	// Expiry is the token's expiry time.
	Expiry time.Time

	// Claims holds the full decoded claim set for plugins that need more.
	Claims map[string]any
}

// HasScope reports whether the principal carries scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier checks a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Principal, error)
}

// scopesFromClaims extracts scopes from either claim convention.
func scopesFromClaims(claims map[string]any) []string {
	if s, ok := claims["scope"].(string); ok && s != "" {
		return strings.Fields(s)
	}
	arr, ok := claims["scopes"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
