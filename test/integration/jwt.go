package integration

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID     = "admin-test-key"
	testAlgorithm = "ES256"
	testIssuer    = "https://auth.test.adminmeta.dev"
	testAudience  = "adminmeta-test"
)

// TestClaims describes the caller a token is issued for.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
}

// adminClaims is the signed payload. Claim names match the default
// claim paths of the identity config.
type adminClaims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// tokenIssuer signs ES256 tokens and serves its public key as a JWKS.
type tokenIssuer struct {
	t    *testing.T
	key  *ecdsa.PrivateKey
	jwks *httptest.Server
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate P-256 key: %v", err)
	}
	ti := &tokenIssuer{t: t, key: key}

	set, err := json.Marshal(map[string]any{"keys": []any{ti.publicJWK()}})
	if err != nil {
		t.Fatalf("encode JWKS: %v", err)
	}
	ti.jwks = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(set)
	}))
	t.Cleanup(ti.jwks.Close)
	return ti
}

func (ti *tokenIssuer) publicJWK() map[string]any {
	pub, err := ti.key.PublicKey.ECDH()
	if err != nil {
		ti.t.Fatalf("public key: %v", err)
	}
	// Uncompressed point: 0x04 || X || Y, 32 bytes each on P-256.
	point := pub.Bytes()
	enc := base64.RawURLEncoding.EncodeToString
	return map[string]any{
		"kid": testKeyID,
		"kty": "EC",
		"crv": "P-256",
		"alg": testAlgorithm,
		"use": "sig",
		"x":   enc(point[1:33]),
		"y":   enc(point[33:]),
	}
}

// GenerateToken returns a token valid for the next hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.sign(claims, testAudience, time.Hour)
}

// GenerateExpiredToken returns a token whose lifetime ended an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return ti.sign(claims, testAudience, -time.Hour)
}

// GenerateTokenFor returns an otherwise valid token for another audience.
func (ti *tokenIssuer) GenerateTokenFor(audience string, claims TestClaims) string {
	return ti.sign(claims, audience, time.Hour)
}

// sign issues a token expiring ttl from now; a negative ttl yields a token
// issued one hour before it expired.
func (ti *tokenIssuer) sign(claims TestClaims, audience string, ttl time.Duration) string {
	expires := time.Now().Add(ttl)
	payload := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   claims.SubjectID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(expires.Add(-max(ttl, time.Hour))),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Roles:    claims.Roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, payload)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		ti.t.Fatalf("sign token: %v", err)
	}
	return signed
}

// JWKSURL is the address of the key set endpoint.
func (ti *tokenIssuer) JWKSURL() string { return ti.jwks.URL }

// Issuer is the iss claim every token carries.
func (ti *tokenIssuer) Issuer() string { return testIssuer }

// Audience is the aud claim of regular tokens.
func (ti *tokenIssuer) Audience() string { return testAudience }

// Algorithms are the signing algorithms the authenticator must accept.
func (ti *tokenIssuer) Algorithms() []string { return []string{testAlgorithm} }
