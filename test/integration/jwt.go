package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "vitrine-test-key"

// TestClaims holds the claims of a generated token.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer signs tokens with an RSA key and serves its public half as a
// JWKS document.
type tokenIssuer struct {
	t          *testing.T
	privateKey *rsa.PrivateKey
	jwksServer *httptest.Server
	issuer     string
	audience   string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key := generateKey(t)
	jwk := map[string]any{
		"kid": testKeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{jwk}})
	}))
	t.Cleanup(srv.Close)

	return &tokenIssuer{
		t:          t,
		privateKey: key,
		jwksServer: srv,
		issuer:     "https://auth.test.vitrine.dev",
		audience:   "vitrine-admin-test",
	}
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

// GenerateToken signs a token valid for an hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.sign(ti.privateKey, ti.mapClaims(claims, time.Now()))
}

// GenerateExpiredToken signs a token that expired an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return ti.sign(ti.privateKey, ti.mapClaims(claims, time.Now().Add(-2*time.Hour)))
}

// GenerateForeignToken signs a token with a key the JWKS does not publish.
func (ti *tokenIssuer) GenerateForeignToken(claims TestClaims) string {
	return ti.sign(generateKey(ti.t), ti.mapClaims(claims, time.Now()))
}

func (ti *tokenIssuer) mapClaims(claims TestClaims, issuedAt time.Time) jwt.MapClaims {
	mc := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}
	if len(claims.Roles) > 0 {
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mc["roles"] = roles
	}
	maps.Copy(mc, claims.Extra)
	return mc
}

func (ti *tokenIssuer) sign(key *rsa.PrivateKey, claims jwt.MapClaims) string {
	ti.t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		ti.t.Fatalf("sign JWT: %v", err)
	}
	return signed
}

// JWKSURL returns the URL of the key set.
func (ti *tokenIssuer) JWKSURL() string { return ti.jwksServer.URL }

// Issuer returns the iss claim of generated tokens.
func (ti *tokenIssuer) Issuer() string { return ti.issuer }

// Audience returns the aud claim of generated tokens.
func (ti *tokenIssuer) Audience() string { return ti.audience }
