package gateway

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	josejwt "gopkg.in/square/go-jose.v2/jwt"

	"github.com/eth-cscs/firecrest-v2/internal/apierr"
)

// TokenVerifier externally verifies a raw bearer token and recovers the
// username it was issued to. Token verification itself (JWKS fetch, claims
// validation) is deliberately out of scope for the core -- this interface
// is the seam a deployment plugs its OIDC/JWT verifier into.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (username string, err error)
}

// StaticVerifier is a development/test TokenVerifier that treats every
// bearer token as already being the username, performing no verification.
// cmd/firecrest-gateway falls back to it only when appDebug is set and no
// public certificates are configured.
type StaticVerifier struct{}

func (StaticVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	if rawToken == "" {
		return "", apierr.Unauthorized("missing token")
	}
	return rawToken, nil
}

// JWTVerifier validates a bearer token's signature against a fixed set of
// PEM-encoded public certificates (the `auth.authentication.publicCerts`
// YAML entries) and recovers the "sub" claim as the username. It does not
// perform OIDC discovery, issuer/audience checks, or JWKS refresh -- those
// are left to the identity provider fronting the gateway. Parses with
// go-jose and validates claims against an already-resolved public key
// rather than fetching one.
type JWTVerifier struct {
	keys []*x509.Certificate
}

// NewJWTVerifier parses each PEM-encoded certificate in certs; a
// certificate that fails to parse is a startup-time configuration error.
func NewJWTVerifier(certs []string) (*JWTVerifier, error) {
	v := &JWTVerifier{}
	for _, raw := range certs {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return nil, trace.BadParameter("publicCerts: not a PEM block")
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, trace.Wrap(err, "publicCerts: parsing certificate")
		}
		v.keys = append(v.keys, cert)
	}
	if len(v.keys) == 0 {
		return nil, trace.BadParameter("publicCerts: at least one certificate is required")
	}
	return v, nil
}

// Verify implements TokenVerifier: it tries each configured public key in
// turn (supporting key rotation without a reload) and validates the
// standard time-bound claims against the current time.
func (v *JWTVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	tok, err := josejwt.ParseSigned(rawToken)
	if err != nil {
		return "", apierr.Unauthorized("malformed bearer token: %v", err)
	}

	var lastErr error
	for _, cert := range v.keys {
		var claims josejwt.Claims
		if err := tok.Claims(cert.PublicKey, &claims); err != nil {
			lastErr = err
			continue
		}
		if err := claims.Validate(josejwt.Expected{Time: time.Now()}); err != nil {
			return "", apierr.Unauthorized("token claims invalid: %v", err)
		}
		if claims.Subject == "" {
			return "", apierr.Unauthorized("token has no subject claim")
		}
		return claims.Subject, nil
	}
	return "", apierr.Unauthorized("token signature verification failed: %v", lastErr)
}

// principal carries what auth middleware extracted from one request.
type principal struct {
	Username    string
	AccessToken string
}

// bearerToken extracts the raw token from the Authorization header, or
// falls back to a `token` query parameter for the WebSocket attach endpoint
// (browsers can't set custom headers on a WS upgrade request).
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return rest
		}
		return auth
	}
	return r.URL.Query().Get("token")
}

// authenticate runs the bearer token through verifier and returns the
// resolved principal, or apierr.Unauthorized.
func authenticate(ctx context.Context, verifier TokenVerifier, r *http.Request) (principal, error) {
	token := bearerToken(r)
	if token == "" {
		return principal{}, apierr.Unauthorized("missing bearer token")
	}
	username, err := verifier.Verify(ctx, token)
	if err != nil {
		return principal{}, apierr.Unauthorized("%v", err)
	}
	return principal{Username: username, AccessToken: token}, nil
}

// withAuth wraps a handler that needs an authenticated principal, resolving
// and injecting it before the handler body runs.
func (s *Server) withAuth(fn func(p principal, w http.ResponseWriter, r *http.Request, params httprouter.Params) (any, error)) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) (any, error) {
		p, err := authenticate(r.Context(), s.Verifier, r)
		if err != nil {
			return nil, err
		}
		return fn(p, w, r, params)
	}
}
