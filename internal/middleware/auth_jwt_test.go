package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthJWT(t *testing.T) {
	const secret = "test-secret"
	valid, err := SignJWT(secret, TokenClaims{
		Locale:           "id-ID",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)
	expired, err := SignJWT(secret, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	require.NoError(t, err)
	foreign, err := SignJWT("other-secret", TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	require.NoError(t, err)
	noSubject, err := SignJWT(secret, TokenClaims{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"garbage", "Bearer a.b.c", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUser, gotLocale string
			h := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserIDFromContext(r.Context())
				gotLocale = LocaleFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "user-1", gotUser)
				assert.Equal(t, "id", gotLocale)
			} else {
				assert.Contains(t, rr.Body.String(), `"code":"unauthorized"`)
			}
		})
	}
}

func TestVerifyJWTRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = VerifyJWT("test-secret", raw)
	assert.Error(t, err)
}
