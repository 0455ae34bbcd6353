package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/model"
)

// --- test helpers ---

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func generateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func rsaKeyToJWK(kid string, pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func ecKeyToJWK(kid string, pub *ecdsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "EC",
		"crv": "P-256",
		"use": "sig",
		"x":   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
		"y":   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
	}
}

func startJWKSServer(t *testing.T, keys ...map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signJWT(t *testing.T, key any, method jwt.SigningMethod, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func testIdentityCfg() config.IdentityConfig {
	return config.IdentityConfig{
		Issuer:     "https://auth.example.com",
		Audience:   "adminmeta",
		Algorithms: []string{"RS256", "ES256"},
		ClaimPaths: map[string]string{
			"subject_id": "sub",
			"tenant_id":  "tenant_id",
			"email":      "email",
			"roles":      "roles",
		},
	}
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-1",
		"email":     "user@example.com",
		"roles":     []string{"admin"},
		"iss":       "https://auth.example.com",
		"aud":       "adminmeta",
		"exp":       jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		"iat":       jwt.NewNumericDate(time.Now()),
	}
}

// --- JWKSClient tests ---

func TestJWKSClient_GetKey_RSA(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("rsa-key-1", &rsaKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	key, err := client.GetKey("rsa-key-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	pubKey, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("key type = %T, want *rsa.PublicKey", key)
	}
	if pubKey.N.Cmp(rsaKey.PublicKey.N) != 0 {
		t.Error("RSA modulus mismatch")
	}
}

func TestJWKSClient_GetKey_EC(t *testing.T) {
	ecKey := generateECKey(t)
	jwks := startJWKSServer(t, ecKeyToJWK("ec-key-1", &ecKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	key, err := client.GetKey("ec-key-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	pubKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("key type = %T, want *ecdsa.PublicKey", key)
	}
	if pubKey.X.Cmp(ecKey.PublicKey.X) != 0 {
		t.Error("EC X coordinate mismatch")
	}
}

func TestJWKSClient_GetKey_unknown(t *testing.T) {
	jwks := startJWKSServer(t) // empty JWKS
	client := NewJWKSClient(jwks.URL, 1*time.Hour)
	_, err := client.GetKey("nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestJWKSClient_caching(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		rsaKey := generateRSAKey(t)
		keys := []map[string]any{rsaKeyToJWK("cached-key", &rsaKey.PublicKey)}
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, 1*time.Hour)
	client.minRefresh = 0 // allow rapid refresh for test

	client.GetKey("cached-key")
	client.GetKey("cached-key")

	if callCount != 1 {
		t.Errorf("JWKS fetched %d times, want 1 (should be cached)", callCount)
	}
}

func TestJWKSClient_multipleKeys(t *testing.T) {
	rsaKey1 := generateRSAKey(t)
	rsaKey2 := generateRSAKey(t)
	jwks := startJWKSServer(t,
		rsaKeyToJWK("key-1", &rsaKey1.PublicKey),
		rsaKeyToJWK("key-2", &rsaKey2.PublicKey),
	)

	client := NewJWKSClient(jwks.URL, 1*time.Hour)

	k1, err := client.GetKey("key-1")
	if err != nil {
		t.Fatalf("GetKey(key-1): %v", err)
	}
	k2, err := client.GetKey("key-2")
	if err != nil {
		t.Fatalf("GetKey(key-2): %v", err)
	}
	if k1.(*rsa.PublicKey).N.Cmp(k2.(*rsa.PublicKey).N) == 0 {
		t.Error("keys should be different")
	}
}

// --- JWTAuthenticator tests ---

func TestJWTAuthenticator_validToken(t *testing.T) {
	rsaKey := generateRSAKey(t)
	ecKey := generateECKey(t)
	jwksSrv := startJWKSServer(t,
		rsaKeyToJWK("rsa-key", &rsaKey.PublicKey),
		ecKeyToJWK("ec-key", &ecKey.PublicKey),
	)
	jwksClient := NewJWKSClient(jwksSrv.URL, time.Hour)

	tests := []struct {
		name   string
		key    any
		method jwt.SigningMethod
		kid    string
	}{
		{"RS256", rsaKey, jwt.SigningMethodRS256, "rsa-key"},
		{"ES256", ecKey, jwt.SigningMethodES256, "ec-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenStr := signJWT(t, tt.key, tt.method, tt.kid, validClaims())
			handler := JWTAuthenticator(testIdentityCfg(), jwksClient)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims := ClaimsFrom(r.Context())
				if sub, _ := claims["sub"].(string); sub != "user-1" {
					t.Errorf("sub = %q, want user-1", sub)
				}
				if got := bearerTokenFrom(r.Context()); got != tokenStr {
					t.Error("bearer token should be kept for forwarding to the GraphQL API")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/meta", nil)
			req.Header.Set("Authorization", "Bearer "+tokenStr)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
		})
	}
}

func TestJWTAuthenticator_rejects(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("test-key", &rsaKey.PublicKey))

	with := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		c := validClaims()
		mutate(c)
		return c
	}
	sign := func(kid string, claims jwt.MapClaims) string {
		return "Bearer " + signJWT(t, rsaKey, jwt.SigningMethodRS256, kid, claims)
	}

	tests := []struct {
		name       string
		header     string
		algorithms []string
	}{
		{name: "missing header"},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz"},
		{name: "not a jwt", header: "Bearer abc.def"},
		{name: "expired", header: sign("test-key", with(func(c jwt.MapClaims) {
			c["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		}))},
		{name: "wrong issuer", header: sign("test-key", with(func(c jwt.MapClaims) {
			c["iss"] = "https://evil.example.com"
		}))},
		{name: "wrong audience", header: sign("test-key", with(func(c jwt.MapClaims) {
			c["aud"] = "another-api"
		}))},
		{name: "missing exp", header: sign("test-key", with(func(c jwt.MapClaims) {
			delete(c, "exp")
		}))},
		{name: "unknown kid", header: sign("rotated-away", validClaims())},
		{name: "disallowed algorithm", header: sign("test-key", validClaims()), algorithms: []string{"ES256"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testIdentityCfg()
			if tt.algorithms != nil {
				cfg.Algorithms = tt.algorithms
			}
			jwksClient := NewJWKSClient(jwksSrv.URL, time.Hour)
			jwksClient.minRefresh = 0

			handler := JWTAuthenticator(cfg, jwksClient)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))
			req := httptest.NewRequest(http.MethodGet, "/admin/navigation", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			var body struct {
				Error model.ErrorEnvelope `json:"error"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != model.ErrUnauthorized {
				t.Errorf("code = %q, want %q", body.Error.Code, model.ErrUnauthorized)
			}
		})
	}
}

func TestJWTAuthenticator_clockSkewTolerance(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("test-key", &rsaKey.PublicKey))
	handler := JWTAuthenticator(testIdentityCfg(), NewJWKSClient(jwksSrv.URL, time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	// Expired 15 seconds ago, inside the 30 second leeway.
	claims := validClaims()
	claims["exp"] = jwt.NewNumericDate(time.Now().Add(-15 * time.Second))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signJWT(t, rsaKey, jwt.SigningMethodRS256, "test-key", claims))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// --- extractClaim tests ---

func TestExtractClaim_dotNotation(t *testing.T) {
	claims := map[string]any{
		"realm_access": map[string]any{
			"roles": []any{"admin", "viewer"},
		},
		"sub": "user-1",
	}

	// Simple path
	if v := extractClaimString(claims, "sub"); v != "user-1" {
		t.Errorf("sub = %q, want user-1", v)
	}

	// Nested path
	roles := extractClaimStringSlice(claims, "realm_access.roles")
	if len(roles) != 2 || roles[0] != "admin" {
		t.Errorf("realm_access.roles = %v, want [admin viewer]", roles)
	}

	// Missing path
	if v := extractClaimString(claims, "nonexistent.path"); v != "" {
		t.Errorf("nonexistent.path = %q, want empty", v)
	}

	// Nil claims
	if v := extractClaimString(nil, "sub"); v != "" {
		t.Errorf("nil claims = %q, want empty", v)
	}
}

func TestExtractClaimStringSlice_spaceSeparated(t *testing.T) {
	claims := map[string]any{"scope": "admin viewer", "roles": []string{"editor"}}
	if got := extractClaimStringSlice(claims, "scope"); len(got) != 2 || got[1] != "viewer" {
		t.Errorf("scope = %v, want [admin viewer]", got)
	}
	if got := extractClaimStringSlice(claims, "roles"); len(got) != 1 || got[0] != "editor" {
		t.Errorf("roles = %v, want [editor]", got)
	}
}

// --- DevAuthenticator tests ---

func TestDevAuthenticator(t *testing.T) {
	cfg := config.IdentityConfig{
		Disabled:   true,
		DevSubject: "dev-user",
		DevRoles:   []string{"admin"},
		ClaimPaths: map[string]string{"roles": "realm_access.roles"},
	}

	var rctx *model.RequestContext
	handler := DevAuthenticator(cfg)(BuildRequestContextMiddleware(cfg.ClaimPaths)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx = model.RequestContextFrom(r.Context())
		w.WriteHeader(200)
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rctx == nil {
		t.Fatal("request context should be built")
	}
	if rctx.SubjectID != "dev-user" {
		t.Errorf("SubjectID = %q, want dev-user", rctx.SubjectID)
	}
	if len(rctx.Roles) != 1 || rctx.Roles[0] != "admin" {
		t.Errorf("Roles = %v, want [admin]", rctx.Roles)
	}
	if rctx.BearerToken != "opaque-token" {
		t.Errorf("BearerToken = %q, want opaque-token", rctx.BearerToken)
	}
}
