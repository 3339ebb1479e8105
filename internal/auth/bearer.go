// Package auth provides bearer-credential detection and verification for
// the security gateway. Requests carrying a verified bearer token are
// treated as API clients: they are exempt from cookie-based CSRF checks
// and their token subject becomes the principal for the IP allow-list
// gate.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

const (
	// AuthorizationHeader is the header inspected for bearer credentials.
	AuthorizationHeader = "Authorization"

	// BearerPrefix is the scheme prefix for bearer credentials.
	BearerPrefix = "Bearer "
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	// ID is the stable identifier of the caller (the token subject).
	ID string

	// Issuer is the issuer of the credential, when present.
	Issuer string
}

// ExtractBearer returns the bearer token from the Authorization header.
// The second return value reports whether a bearer credential was present,
// regardless of whether it verifies. The scheme comparison is
// case-insensitive per RFC 7235.
func ExtractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get(AuthorizationHeader)
	if len(header) < len(BearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(BearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// HasBearerCredential reports whether the request carries a bearer
// credential in its Authorization header.
func HasBearerCredential(r *http.Request) bool {
	_, ok := ExtractBearer(r)
	return ok
}

// Verifier verifies bearer tokens and resolves the request principal.
type Verifier struct {
	key       []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	logger    *zap.Logger
}

// VerifierOption is a functional option for the verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires tokens to carry the given issuer claim.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithAudience requires tokens to carry the given audience claim.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) {
		v.audience = audience
	}
}

// WithClockSkew sets the allowed clock skew for time-based claims.
func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.clockSkew = skew
	}
}

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a bearer token verifier using an HMAC signing key.
func NewVerifier(key []byte, opts ...VerifierOption) (*Verifier, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}

	v := &Verifier{
		key:       key,
		clockSkew: 30 * time.Second,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify parses and validates a bearer token, returning its principal.
func (v *Verifier) Verify(token string) (*Principal, error) {
	parseOpts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.clockSkew),
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify bearer token: %w", err)
	}

	subject := parsed.Subject()
	if subject == "" {
		return nil, fmt.Errorf("bearer token has no subject")
	}

	return &Principal{
		ID:     subject,
		Issuer: parsed.Issuer(),
	}, nil
}

// VerifyRequest extracts and verifies the bearer credential on a request.
// It returns (nil, nil) when no bearer credential is present.
func (v *Verifier) VerifyRequest(r *http.Request) (*Principal, error) {
	token, ok := ExtractBearer(r)
	if !ok {
		return nil, nil
	}

	principal, err := v.Verify(token)
	if err != nil {
		v.logger.Debug("bearer token verification failed", zap.Error(err))
		return nil, err
	}

	return principal, nil
}
