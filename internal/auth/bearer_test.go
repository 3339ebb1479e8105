package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

func signToken(t *testing.T, key []byte, build func(b *jwt.Builder)) string {
	t.Helper()

	b := jwt.NewBuilder().
		Subject("user-1").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if build != nil {
		build(b)
	}

	token, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)

	return string(signed)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{"bearer token", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer abc.def.ghi", "abc.def.ghi", true},
		{"missing header", "", "", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", false},
		{"scheme without token", "Bearer ", "", false},
		{"scheme only", "Bearer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}

			token, ok := ExtractBearer(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestVerifierVerify(t *testing.T) {
	verifier, err := NewVerifier(testKey)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		principal, err := verifier.Verify(signToken(t, testKey, nil))
		require.NoError(t, err)
		assert.Equal(t, "user-1", principal.ID)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := verifier.Verify(signToken(t, []byte("another-key-another-key-another!"), nil))
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, testKey, func(b *jwt.Builder) {
			b.Expiration(time.Now().Add(-time.Hour))
		})
		_, err := verifier.Verify(token)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, testKey, func(b *jwt.Builder) {
			b.Subject("")
		})
		_, err := verifier.Verify(token)
		assert.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := verifier.Verify("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestVerifierClaims(t *testing.T) {
	verifier, err := NewVerifier(testKey,
		WithIssuer("secgate-test"),
		WithAudience("api"),
	)
	require.NoError(t, err)

	t.Run("matching claims", func(t *testing.T) {
		token := signToken(t, testKey, func(b *jwt.Builder) {
			b.Issuer("secgate-test").Audience([]string{"api"})
		})
		principal, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "secgate-test", principal.Issuer)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := signToken(t, testKey, func(b *jwt.Builder) {
			b.Issuer("someone-else").Audience([]string{"api"})
		})
		_, err := verifier.Verify(token)
		assert.Error(t, err)
	})

	t.Run("missing audience", func(t *testing.T) {
		token := signToken(t, testKey, func(b *jwt.Builder) {
			b.Issuer("secgate-test")
		})
		_, err := verifier.Verify(token)
		assert.Error(t, err)
	})
}

func TestVerifyRequest(t *testing.T) {
	verifier, err := NewVerifier(testKey)
	require.NoError(t, err)

	t.Run("no credential returns nil principal and nil error", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		principal, err := verifier.VerifyRequest(req)
		assert.NoError(t, err)
		assert.Nil(t, principal)
	})

	t.Run("valid credential", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+signToken(t, testKey, nil))

		principal, err := verifier.VerifyRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", principal.ID)
	})

	t.Run("invalid credential", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(AuthorizationHeader, "Bearer forged")

		_, err := verifier.VerifyRequest(req)
		assert.Error(t, err)
	})
}

func TestNewVerifierRequiresKey(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.Error(t, err)
}
