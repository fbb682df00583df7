package sshpool

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/eth-cscs/firecrest-v2/internal/credential"
	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestCheckAndSetDefaultsRequiresHost(t *testing.T) {
	cfg := Config{Credentials: credential.NewStatic(nil)}
	err := cfg.CheckAndSetDefaults()
	require.Error(t, err)
}

func TestCheckAndSetDefaultsRequiresCredentials(t *testing.T) {
	cfg := Config{Host: "login.example.com"}
	err := cfg.CheckAndSetDefaults()
	require.Error(t, err)
}

func TestCheckAndSetDefaultsFillsDefaults(t *testing.T) {
	cfg := Config{
		Host:           "login.example.com",
		Credentials:    credential.NewStatic(nil),
		ExecuteTimeout: 5 * time.Second,
		IdleTimeout:    60 * time.Second,
	}
	require.NoError(t, cfg.CheckAndSetDefaults())
	require.Equal(t, 100, cfg.MaxClients)
	require.Equal(t, int64(10*1024*1024), cfg.BufferLimit)
	require.NotNil(t, cfg.Clock)
}

func TestCheckAndSetDefaultsRejectsIdleNotGreaterThanExecute(t *testing.T) {
	cfg := Config{
		Host:           "login.example.com",
		Credentials:    credential.NewStatic(nil),
		ExecuteTimeout: 60 * time.Second,
		IdleTimeout:    30 * time.Second,
	}
	err := cfg.CheckAndSetDefaults()
	require.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewFromModel(t *testing.T) {
	cfg := model.SSHConfig{
		Host:       "login.example.com",
		Port:       22,
		MaxClients: 10,
		Timeouts: model.SSHTimeouts{
			Connect:   time.Second,
			Login:     time.Second,
			Execute:   time.Second,
			Idle:      time.Minute,
			KeepAlive: time.Second,
		},
	}
	pool, err := NewFromModel(cfg, credential.NewStatic(nil), nil)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Len())
}

func TestLimitedBufferTracksOverflow(t *testing.T) {
	var b limitedBuffer
	b.limit = 10
	n, err := b.Write([]byte("12345"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.False(t, b.overflowed)

	n, err = b.Write([]byte("67890ABCDEF"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.True(t, b.overflowed)
}

func TestLimitedBufferIgnoresWritesAfterOverflow(t *testing.T) {
	var b limitedBuffer
	b.limit = 4
	b.Write([]byte("12345"))
	require.True(t, b.overflowed)
	before := b.Bytes()
	b.Write([]byte("more"))
	require.Equal(t, before, b.Bytes())
}

func TestAuthMethodForPlainKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(block)

	creds := &model.SSHCredentials{PrivateKey: pemData}
	method, err := authMethodFor(creds)
	require.NoError(t, err)
	require.NotNil(t, method)
}

func TestAuthMethodForRejectsBadKey(t *testing.T) {
	creds := &model.SSHCredentials{PrivateKey: []byte("not a key")}
	_, err := authMethodFor(creds)
	require.Error(t, err)
}
