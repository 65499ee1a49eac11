package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"crowdsale/crypto"
)

const testSecret = "gateway-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticatorInstallsPrincipal(t *testing.T) {
	issuer := [20]byte{0x11}
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "crowdsale"}, nil)

	var seen [20]byte
	handler := auth.Middleware(ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p.Account
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, jwt.MapClaims{
		"sub":   crypto.FormatAccount(issuer),
		"iss":   "crowdsale",
		"scope": "sale:admin sale:notify",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/finalize", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, issuer, seen)
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "crowdsale"}, nil)
	handler := auth.Middleware(ScopeAdmin)(okHandler())
	subject := crypto.FormatAccount([20]byte{0x11})

	cases := map[string]struct {
		header string
		status int
	}{
		"missing": {header: "", status: http.StatusUnauthorized},
		"expired": {header: "Bearer " + signToken(t, jwt.MapClaims{
			"sub": subject, "iss": "crowdsale", "scope": ScopeAdmin, "exp": time.Now().Add(-time.Hour).Unix(),
		}), status: http.StatusUnauthorized},
		"wrong issuer": {header: "Bearer " + signToken(t, jwt.MapClaims{
			"sub": subject, "iss": "other", "scope": ScopeAdmin,
		}), status: http.StatusUnauthorized},
		"bad subject": {header: "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "nobody", "iss": "crowdsale", "scope": ScopeAdmin,
		}), status: http.StatusUnauthorized},
		"missing scope": {header: "Bearer " + signToken(t, jwt.MapClaims{
			"sub": subject, "iss": "crowdsale", "scope": ScopeNotify,
		}), status: http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/finalize", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
		})
	}
}

func TestExtractScopesArray(t *testing.T) {
	scopes := extractScopes(jwt.MapClaims{"scope": []interface{}{"a", 3, "b"}}, "scope")
	require.Equal(t, []string{"a", "b"}, scopes)
	require.True(t, hasScopes(scopes, []string{"b"}))
	require.False(t, hasScopes(scopes, []string{"c"}))
}
