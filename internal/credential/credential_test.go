package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/config"
)

func TestStaticObtainKnownUser(t *testing.T) {
	p := NewStatic(map[string]config.StaticKey{
		"alice": {PrivateKey: "pkey-data", PublicCert: "cert-data", Passphrase: "s3cret"},
	})
	creds, err := p.Obtain(context.Background(), "alice", "")
	require.NoError(t, err)
	require.Equal(t, []byte("pkey-data"), creds.PrivateKey)
	require.Equal(t, []byte("cert-data"), creds.Certificate)
	require.Equal(t, "s3cret", creds.Passphrase)
}

func TestStaticObtainUnknownUser(t *testing.T) {
	p := NewStatic(map[string]config.StaticKey{"alice": {PrivateKey: "x"}})
	_, err := p.Obtain(context.Background(), "bob", "")
	require.True(t, trace.IsNotFound(err))
}

func TestStaticObtainNoCertWhenAbsent(t *testing.T) {
	p := NewStatic(map[string]config.StaticKey{"alice": {PrivateKey: "pkey-data"}})
	creds, err := p.Obtain(context.Background(), "alice", "")
	require.NoError(t, err)
	require.Nil(t, creds.Certificate)
}

func TestSigningServiceObtainSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ssh-ed25519-cert-v01@openssh.com AAAA... cert"))
	}))
	defer srv.Close()

	p := NewSigningService(srv.URL, 10, time.Second)
	creds, err := p.Obtain(context.Background(), "alice", "access-token")
	require.NoError(t, err)
	require.NotEmpty(t, creds.PrivateKey)
	require.Contains(t, string(creds.Certificate), "cert-v01")
}

func TestSigningServiceObtainRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("token expired"))
	}))
	defer srv.Close()

	p := NewSigningService(srv.URL, 10, time.Second)
	_, err := p.Obtain(context.Background(), "alice", "bad-token")
	require.True(t, trace.IsAccessDenied(err))
}

func TestSigningServiceObtainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewSigningService(srv.URL, 10, time.Second)
	_, err := p.Obtain(context.Background(), "alice", "tok")
	require.Error(t, err)
	require.False(t, trace.IsAccessDenied(err))
}

func TestNewSigningServiceDefaultsMaxConnections(t *testing.T) {
	p := NewSigningService("https://signer.example.com", 0, time.Second)
	require.NotNil(t, p.httpClient)
}
