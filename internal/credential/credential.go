// Package credential implements the gateway's two Credential Provider
// variants: a static per-user key map, and a remote signing service that
// mints a short-lived SSH certificate from the user's own OIDC token. Both
// satisfy the same Provider contract so internal/sshpool never needs to
// know which one backs a given cluster.
package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/eth-cscs/firecrest-v2/internal/config"
	"github.com/eth-cscs/firecrest-v2/internal/model"
)

var log = logrus.WithField(trace.Component, "credential")

// Provider obtains an SSH keypair (and optionally a certificate and
// passphrase) usable to authenticate as the given user against a cluster
// login node.
type Provider interface {
	Obtain(ctx context.Context, username, accessToken string) (*model.SSHCredentials, error)
}

// Static serves credentials from a preloaded username -> key map. It is
// built once at startup from the `sshCredentials.keys` YAML section; keys
// referenced via `secret_file:` have already been resolved to their
// contents by internal/config.
type Static struct {
	keys map[string]config.StaticKey
}

// NewStatic builds a Static provider from the already-resolved key map.
func NewStatic(keys map[string]config.StaticKey) *Static {
	return &Static{keys: keys}
}

// Obtain implements Provider.
func (s *Static) Obtain(_ context.Context, username, _ string) (*model.SSHCredentials, error) {
	key, ok := s.keys[username]
	if !ok {
		return nil, trace.NotFound("no static SSH credentials configured for user %q", username)
	}
	creds := &model.SSHCredentials{
		PrivateKey: []byte(key.PrivateKey),
		Passphrase: key.Passphrase,
	}
	if key.PublicCert != "" {
		creds.Certificate = []byte(key.PublicCert)
	}
	return creds, nil
}

// SigningService obtains a fresh ed25519 keypair per call and exchanges the
// user's OIDC access token, used as a one-time token, for a short-lived SSH
// certificate over the public key. The private key never leaves this
// process; only the public key is sent over the wire.
type SigningService struct {
	url        string
	httpClient *http.Client
}

// NewSigningService builds a signing-service provider bound to url, using a
// process-scoped HTTP client with maxConnections idle connections rather
// than http.DefaultClient, so connection reuse and timeouts are under this
// package's control instead of shared global defaults.
func NewSigningService(url string, maxConnections int, timeout time.Duration) *SigningService {
	if maxConnections <= 0 {
		maxConnections = 100
	}
	return &SigningService{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: maxConnections,
				MaxConnsPerHost:     maxConnections,
			},
		},
	}
}

type signRequest struct {
	PublicKey string `json:"PublicKey"`
	OTT       string `json:"OTT"`
}

// Obtain implements Provider.
func (s *SigningService) Obtain(ctx context.Context, username, accessToken string) (*model.SSHCredentials, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, trace.Wrap(err, "generating ed25519 keypair for %q", username)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	body, err := json.Marshal(signRequest{
		PublicKey: string(ssh.MarshalAuthorizedKey(sshPub)),
		OTT:       accessToken,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, trace.Wrap(&signingServiceUnavailable{cause: err})
	}
	defer resp.Body.Close()

	certText, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, trace.AccessDenied("signing service rejected token for %q: %s", username, strings.TrimSpace(string(certText)))
	default:
		return nil, trace.Wrap(&signingServiceUnavailable{cause: trace.Errorf("signing service returned %d", resp.StatusCode)})
	}

	// ed25519.PrivateKey satisfies crypto.Signer directly; validate it
	// produces a usable SSH signer before handing it back.
	if _, err := ssh.NewSignerFromSigner(priv); err != nil {
		return nil, trace.Wrap(err)
	}
	log.WithField("user", username).Debug("obtained SSH certificate from signing service")

	pemBlock, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return &model.SSHCredentials{
		PrivateKey:  pem.EncodeToMemory(pemBlock),
		Certificate: certText,
	}, nil
}

// signingServiceUnavailable is returned when the signing service cannot be
// reached or errors out, distinct from an outright auth rejection.
type signingServiceUnavailable struct {
	cause error
}

func (e *signingServiceUnavailable) Error() string {
	return "signing service unavailable: " + e.cause.Error()
}

func (e *signingServiceUnavailable) OrigError() error { return e }
