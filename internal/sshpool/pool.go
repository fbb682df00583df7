// Package sshpool implements the per-cluster, per-user SSH connection pool:
// lazy client creation with credential brokering, strict connect/login/
// execute/idle timeouts, a global max-clients cap, and a periodic pruner.
package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/eth-cscs/firecrest-v2/internal/credential"
	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
)

var log = logrus.WithField(trace.Component, "sshpool")

// Config bundles the per-cluster pool configuration derived from the
// cluster's YAML entry (model.SSHConfig) plus its credential provider.
type Config struct {
	Host       string
	Port       int
	ProxyHost  string
	ProxyPort  int
	MaxClients int

	ConnectTimeout time.Duration
	LoginTimeout   time.Duration
	ExecuteTimeout time.Duration
	IdleTimeout    time.Duration
	KeepAlive      time.Duration
	BufferLimit    int64

	Credentials credential.Provider
	Clock       clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills in a clock if absent.
func (c *Config) CheckAndSetDefaults() error {
	if c.Host == "" {
		return trace.BadParameter("sshpool: host is required")
	}
	if c.Credentials == nil {
		return trace.BadParameter("sshpool: credentials provider is required")
	}
	if c.MaxClients <= 0 {
		c.MaxClients = 100
	}
	if c.BufferLimit <= 0 {
		c.BufferLimit = 10 * 1024 * 1024
	}
	if c.IdleTimeout <= c.ExecuteTimeout {
		return trace.BadParameter("sshpool: idle_timeout (%s) must be greater than execute_timeout (%s)", c.IdleTimeout, c.ExecuteTimeout)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Pool is keyed by username and lazily creates one authenticated SSH
// connection per user to one cluster's login node.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*pooledClient

	// inflight de-duplicates concurrent first-acquires for the same user
	// so two simultaneous requests don't both dial; see Acquire.
	inflight map[string]*inflightDial
}

type inflightDial struct {
	done   chan struct{}
	client *pooledClient
	err    error
}

type pooledClient struct {
	username string
	client   *ssh.Client
	conn     net.Conn

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// New builds a Pool for one cluster, validating cfg and filling its
// defaults with cfg.CheckAndSetDefaults first.
func New(cfg Config) (*Pool, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Pool{
		cfg:      cfg,
		clients:  make(map[string]*pooledClient),
		inflight: make(map[string]*inflightDial),
	}, nil
}

// NewFromModel builds a Pool from a cluster's SSH config.
func NewFromModel(cfg model.SSHConfig, creds credential.Provider, clock clockwork.Clock) (*Pool, error) {
	return New(Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ProxyHost:      cfg.ProxyHost,
		ProxyPort:      cfg.ProxyPort,
		MaxClients:     cfg.MaxClients,
		ConnectTimeout: cfg.Timeouts.Connect,
		LoginTimeout:   cfg.Timeouts.Login,
		ExecuteTimeout: cfg.Timeouts.Execute,
		IdleTimeout:    cfg.Timeouts.Idle,
		KeepAlive:      cfg.Timeouts.KeepAlive,
		BufferLimit:    cfg.BufferLimit,
		Credentials:    creds,
		Clock:          clock,
	})
}

// Client is the handle a caller gets back from WithClient: it may only be
// used for the duration of the callback.
type Client struct {
	pool *Pool
	pc   *pooledClient
}

// WithClient acquires (creating if necessary) the SSH client for username,
// runs fn, and always stamps last_used on return, even when fn errors.
func (p *Pool) WithClient(ctx context.Context, username, accessToken string, fn func(*Client) error) error {
	pc, err := p.acquire(ctx, username, accessToken)
	if err != nil {
		return trace.Wrap(err)
	}
	defer func() {
		pc.mu.Lock()
		pc.lastUsed = p.cfg.Clock.Now()
		pc.mu.Unlock()
	}()
	return fn(&Client{pool: p, pc: pc})
}

// acquire: under the pool lock, reuse a live entry, evict a closed one,
// enforce the max-clients cap, then -- outside the lock -- dial and
// authenticate, with concurrent first-acquires for the same user collapsed
// via p.inflight.
func (p *Pool) acquire(ctx context.Context, username, accessToken string) (*pooledClient, error) {
	p.mu.Lock()
	if pc, ok := p.clients[username]; ok {
		pc.mu.Lock()
		closed := pc.closed
		pc.mu.Unlock()
		if !closed {
			p.mu.Unlock()
			return pc, nil
		}
		delete(p.clients, username)
	}

	if dial, ok := p.inflight[username]; ok {
		p.mu.Unlock()
		<-dial.done
		if dial.err != nil {
			return nil, trace.Wrap(dial.err)
		}
		return dial.client, nil
	}

	if len(p.clients) >= p.cfg.MaxClients {
		p.mu.Unlock()
		return nil, trace.LimitExceeded("SSH pool at capacity (%d clients)", p.cfg.MaxClients)
	}

	dial := &inflightDial{done: make(chan struct{})}
	p.inflight[username] = dial
	p.mu.Unlock()

	pc, err := p.dial(ctx, username, accessToken)

	p.mu.Lock()
	delete(p.inflight, username)
	if err == nil {
		p.clients[username] = pc
	}
	p.mu.Unlock()

	dial.client, dial.err = pc, err
	close(dial.done)

	if err != nil {
		return nil, trace.Wrap(err)
	}
	return pc, nil
}

// dial performs the actual network work: credential brokering, optional
// proxy-jump tunnel, and the SSH handshake. It must be called without
// holding p.mu, so network I/O never happens under the pool lock.
func (p *Pool) dial(ctx context.Context, username, accessToken string) (*pooledClient, error) {
	credCtx, cancel := context.WithTimeout(ctx, p.cfg.LoginTimeout)
	defer cancel()
	creds, err := p.cfg.Credentials.Obtain(credCtx, username, accessToken)
	if err != nil {
		if credCtx.Err() != nil {
			return nil, trace.LimitExceeded("timed out obtaining credentials for %q", username)
		}
		return nil, trace.Wrap(err)
	}

	authMethod, err := authMethodFor(creds)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // configured hosts are trusted
		Timeout:         p.cfg.ConnectTimeout,
	}

	target := net.JoinHostPort(p.cfg.Host, fmt.Sprintf("%d", p.cfg.Port))

	var conn net.Conn
	if p.cfg.ProxyHost != "" {
		conn, err = p.dialViaProxy(ctx, clientConfig, target)
	} else {
		dialer := net.Dialer{Timeout: p.cfg.ConnectTimeout}
		conn, err = dialer.DialContext(ctx, "tcp", target)
	}
	if err != nil {
		return nil, trace.ConnectionProblem(err, "dialing %s as %q", target, username)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, clientConfig)
	if err != nil {
		conn.Close()
		log.WithFields(logrus.Fields{
			"user":   username,
			"target": target,
		}).Warnf("SSH handshake failed: %v", err)
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	if p.cfg.KeepAlive > 0 {
		go keepAlive(client, p.cfg.KeepAlive, 3)
	}

	pc := &pooledClient{
		username: username,
		client:   client,
		conn:     conn,
		lastUsed: p.cfg.Clock.Now(),
	}
	return pc, nil
}

// dialViaProxy opens a tunnel to (proxy_host, proxy_port) using the same
// client config, then dials the real target through it.
func (p *Pool) dialViaProxy(ctx context.Context, clientConfig *ssh.ClientConfig, target string) (net.Conn, error) {
	proxyAddr := net.JoinHostPort(p.cfg.ProxyHost, fmt.Sprintf("%d", p.cfg.ProxyPort))
	dialer := net.Dialer{Timeout: p.cfg.ConnectTimeout}
	proxyConn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "dialing proxy %s", proxyAddr)
	}
	proxySSHConn, chans, reqs, err := ssh.NewClientConn(proxyConn, proxyAddr, clientConfig)
	if err != nil {
		proxyConn.Close()
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}
	proxyClient := ssh.NewClient(proxySSHConn, chans, reqs)
	conn, err := proxyClient.Dial("tcp", target)
	if err != nil {
		proxyClient.Close()
		return nil, trace.ConnectionProblem(err, "dialing %s via proxy %s", target, proxyAddr)
	}
	return conn, nil
}

func keepAlive(client *ssh.Client, interval time.Duration, countMax int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	missed := 0
	for range ticker.C {
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			missed++
			if missed >= countMax {
				client.Close()
				return
			}
			continue
		}
		missed = 0
	}
}

// Prune closes and removes every client across the pool whose idle time
// exceeds the configured idle timeout. Called on a fixed cadence by
// cmd/firecrest-gateway's runPrunes; exported so a single process-wide
// ticker can drive every cluster's pool.
func (p *Pool) Prune() {
	now := p.cfg.Clock.Now()
	p.mu.Lock()
	var toClose []*pooledClient
	for username, pc := range p.clients {
		pc.mu.Lock()
		idle := now.Sub(pc.lastUsed)
		pc.mu.Unlock()
		if idle > p.cfg.IdleTimeout {
			toClose = append(toClose, pc)
			delete(p.clients, username)
		}
	}
	p.mu.Unlock()

	for _, pc := range toClose {
		pc.mu.Lock()
		pc.closed = true
		pc.mu.Unlock()
		pc.client.Close()
	}
}

// Len reports the number of live clients, for tests and metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// evict marks pc closed and removes it from the pool immediately, used when
// a command execution surfaces an authentication failure so the next
// acquire re-provisions credentials.
func (p *Pool) evict(pc *pooledClient) {
	p.mu.Lock()
	if existing, ok := p.clients[pc.username]; ok && existing == pc {
		delete(p.clients, pc.username)
	}
	p.mu.Unlock()
	pc.mu.Lock()
	pc.closed = true
	pc.mu.Unlock()
	pc.client.Close()
}

// Execute runs cmd on the underlying SSH connection: render, open one
// remote process, feed stdin if given, capture stdout/stderr up to the
// pool's buffer limit, enforce the execute timeout, and parse the result.
func (c *Client) Execute(ctx context.Context, cmd fsops.Command, stdin io.Reader) (any, error) {
	limit := c.pool.cfg.BufferLimit
	execCtx, cancel := context.WithTimeout(ctx, c.pool.cfg.ExecuteTimeout)
	defer cancel()

	session, err := c.pc.client.NewSession()
	if err != nil {
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}
	defer session.Close()

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = limit, limit
	session.Stdout = &stdout
	session.Stderr = &stderr

	if stdin != nil {
		stdinPipe, err := session.StdinPipe()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		go func() {
			io.Copy(stdinPipe, stdin)
			stdinPipe.Close()
		}()
	}

	rendered := cmd.Render()
	if err := session.Start(rendered); err != nil {
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		if stdout.overflowed || stderr.overflowed {
			return nil, trace.LimitExceeded("command output exceeded buffer limit of %d bytes", limit)
		}
		exitStatus := 0
		if err != nil {
			var exitErr *ssh.ExitError
			if errAs(err, &exitErr) {
				exitStatus = exitErr.ExitStatus()
			} else {
				return nil, trace.Wrap(&sshConnectionError{cause: err})
			}
		}
		return cmd.Parse(stdout.Bytes(), stderr.Bytes(), exitStatus)
	case <-execCtx.Done():
		session.Signal(ssh.SIGINT)
		session.Close()
		return nil, trace.LimitExceeded("command timed out after %s", c.pool.cfg.ExecuteTimeout)
	}
}

// SFTP opens an SFTP subsystem session over the underlying SSH connection,
// the fast path internal/mediator's Filesystem Download/Upload use instead of the
// base64-over-exec round trip when the remote sshd offers it. Callers must
// Close the returned client.
func (c *Client) SFTP() (*sftp.Client, error) {
	sc, err := sftp.NewClient(c.pc.client)
	if err != nil {
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}
	return sc, nil
}

// AttachSession is an interactive remote process opened by Client.Attach:
// unlike Execute, it hands back live pipes instead of waiting for exit, for
// internal/attach's WebSocket bridge to stream against.
type AttachSession struct {
	session *ssh.Session
	Stdin   io.WriteCloser
	Stdout  io.Reader
	Stderr  io.Reader
}

// Wait blocks until the remote process exits.
func (s *AttachSession) Wait() error {
	return s.session.Wait()
}

// Close terminates the remote process and releases the SSH channel. Safe to
// call after Wait.
func (s *AttachSession) Close() error {
	return s.session.Close()
}

// Signal delivers sig to the remote process, used to propagate a client
// disconnect or cancellation into the job's session.
func (s *AttachSession) Signal(sig ssh.Signal) error {
	return s.session.Signal(sig)
}

// Attach opens a new SSH session and starts cmd without waiting for it to
// finish, handing back its stdin/stdout/stderr pipes for interactive use
// by the srun-attach WebSocket bridge.
func (c *Client) Attach(ctx context.Context, cmd string) (*AttachSession, error) {
	session, err := c.pc.client.NewSession()
	if err != nil {
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, trace.Wrap(err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, trace.Wrap(err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, trace.Wrap(err)
	}

	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, trace.Wrap(&sshConnectionError{cause: err})
	}

	pc := c.pc
	pool := c.pool
	touch := func() {
		pc.mu.Lock()
		pc.lastUsed = pool.cfg.Clock.Now()
		pc.mu.Unlock()
	}
	touch()

	// While the session's context lives, refresh last_used every 5 seconds
	// so the pruner does not close a client with an attach session open.
	go func() {
		ticker := pool.cfg.Clock.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				session.Close()
				return
			case <-ticker.Chan():
				touch()
			}
		}
	}()

	return &AttachSession{session: session, Stdin: stdin, Stdout: stdout, Stderr: stderr}, nil
}

func errAs(err error, target **ssh.ExitError) bool {
	exitErr, ok := err.(*ssh.ExitError)
	if !ok {
		return false
	}
	*target = exitErr
	return true
}

// limitedBuffer is an io.Writer that caps how much it will retain,
// recording whether the caller tried to write past the limit rather than
// silently truncating.
type limitedBuffer struct {
	buf        bytes.Buffer
	limit      int64
	overflowed bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflowed {
		return len(p), nil
	}
	if int64(b.buf.Len()+len(p)) > b.limit {
		b.overflowed = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }

// sshConnectionError covers handshake/session-open failures that aren't
// plain dial errors. It reports itself as a connection problem, so it maps
// to 502 like the dial errors already wrapped with trace.ConnectionProblem.
type sshConnectionError struct {
	cause error
}

func (e *sshConnectionError) Error() string    { return "ssh connection error: " + e.cause.Error() }
func (e *sshConnectionError) OrigError() error { return e }

// IsConnectionProblemError makes trace.IsConnectionProblem match it.
func (e *sshConnectionError) IsConnectionProblemError() bool { return true }

func authMethodFor(creds *model.SSHCredentials) (ssh.AuthMethod, error) {
	var signer ssh.Signer
	var err error
	if len(creds.Passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(creds.PrivateKey, []byte(creds.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(creds.PrivateKey)
	}
	if err != nil {
		return nil, trace.Wrap(err, "parsing private key")
	}
	if len(creds.Certificate) > 0 {
		pub, _, _, _, err := ssh.ParseAuthorizedKey(creds.Certificate)
		if err != nil {
			return nil, trace.Wrap(err, "parsing certificate")
		}
		cert, ok := pub.(*ssh.Certificate)
		if !ok {
			return nil, trace.BadParameter("expected SSH certificate, got %T", pub)
		}
		certSigner, err := ssh.NewCertSigner(cert, signer)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		signer = certSigner
	}
	return ssh.PublicKeys(signer), nil
}
