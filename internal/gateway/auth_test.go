package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

func selfSignedCertPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, subject string, expiry time.Time) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	claims := josejwt.Claims{
		Subject:  subject,
		Expiry:   josejwt.NewNumericDate(expiry),
		IssuedAt: josejwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	tok, err := josejwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return tok
}

func TestJWTVerifierValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert := selfSignedCertPEM(t, key)

	v, err := NewJWTVerifier([]string{cert})
	require.NoError(t, err)

	tok := signToken(t, key, "alice", time.Now().Add(time.Hour))
	username, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestJWTVerifierExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert := selfSignedCertPEM(t, key)

	v, err := NewJWTVerifier([]string{cert})
	require.NoError(t, err)

	tok := signToken(t, key, "alice", time.Now().Add(-time.Hour))
	_, err = v.Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestJWTVerifierWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert := selfSignedCertPEM(t, key)
	v, err := NewJWTVerifier([]string{cert})
	require.NoError(t, err)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := signToken(t, otherKey, "alice", time.Now().Add(time.Hour))

	_, err = v.Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestNewJWTVerifierRejectsGarbage(t *testing.T) {
	_, err := NewJWTVerifier([]string{"not a pem block"})
	require.Error(t, err)

	_, err = NewJWTVerifier(nil)
	require.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	var v StaticVerifier
	_, err := v.Verify(context.Background(), "")
	require.Error(t, err)

	username, err := v.Verify(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", username)
}
