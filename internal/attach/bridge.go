// Package attach implements the WebSocket bridge backing
// `WS /compute/{system}/jobs/{job_id}/attach`: it runs the scheduler's
// attach command (srun --overlap, in the SLURM case) over the caller's own
// pooled SSH client and pipes stdout/stderr to text frames, websocket text
// frames to stdin, and a periodic keep-alive, cancelling every sibling task
// the instant any one of them finishes -- several dial/serve loops racing
// on one shared context and tearing down together on first error.
package attach

import (
	"context"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

var log = logrus.WithField(trace.Component, "attach")

// KeepAliveInterval is how often the bridge pings the websocket client
// while a session is attached.
const KeepAliveInterval = 5 * time.Second

// Bridge wires one attached WebSocket connection to one interactive SSH
// session for the session's lifetime.
type Bridge struct {
	Conn    *websocket.Conn
	Session *sshpool.AttachSession
}

// Run blocks until the session exits, the websocket closes, or ctx is
// canceled, whichever happens first; it always leaves the session closed
// on return.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.Session.Close()

	errs := make(chan error, 4)

	go b.readStdout(ctx, errs)
	go b.readStderr(ctx, errs)
	go b.writeStdin(ctx, errs)
	go b.keepAlive(ctx, errs)

	var first error
	select {
	case first = <-errs:
	case <-ctx.Done():
		first = ctx.Err()
	}
	cancel()
	b.Session.Close()
	b.Conn.Close()
	if first != nil && first != context.Canceled {
		log.WithError(first).Debug("attach session ended")
	}
	return first
}

// readStdout copies the remote process's stdout to text frames until EOF,
// cancellation, or a write error.
func (b *Bridge) readStdout(ctx context.Context, errs chan<- error) {
	errs <- copyToFrames(ctx, b.Conn, b.Session.Stdout)
}

// readStderr mirrors readStdout for stderr.
func (b *Bridge) readStderr(ctx context.Context, errs chan<- error) {
	errs <- copyToFrames(ctx, b.Conn, b.Session.Stderr)
}

func copyToFrames(ctx context.Context, conn *websocket.Conn, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
				return trace.Wrap(werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return trace.Wrap(err)
		}
	}
}

// writeStdin reads text frames off the websocket and feeds them to the
// remote process's stdin, until the client closes the connection or stdin
// refuses the write.
func (b *Bridge) writeStdin(ctx context.Context, errs chan<- error) {
	for {
		if ctx.Err() != nil {
			errs <- ctx.Err()
			return
		}
		msgType, data, err := b.Conn.ReadMessage()
		if err != nil {
			errs <- trace.Wrap(err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if _, err := b.Session.Stdin.Write(data); err != nil {
			errs <- trace.Wrap(err)
			return
		}
	}
}

// keepAlive sends a websocket ping on a fixed cadence to detect a dead
// client faster than TCP would. The pooled SSH client's last_used is
// refreshed separately, by sshpool's Client.Attach, for as long as the
// session's context lives.
func (b *Bridge) keepAlive(ctx context.Context, errs chan<- error) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-ticker.C:
			if err := b.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				errs <- trace.Wrap(err)
				return
			}
		}
	}
}

// Attach opens the interactive session for cmd over pool's pooled client
// for username and starts the bridge. Callers are responsible for closing
// conn; Run closes it on return.
func Attach(ctx context.Context, pool *sshpool.Pool, conn *websocket.Conn, username, accessToken, cmd string) error {
	var runErr error
	err := pool.WithClient(ctx, username, accessToken, func(c *sshpool.Client) error {
		session, err := c.Attach(ctx, cmd)
		if err != nil {
			return trace.Wrap(err)
		}
		bridge := &Bridge{Conn: conn, Session: session}
		runErr = bridge.Run(ctx)
		return nil
	})
	if err != nil {
		return trace.Wrap(err)
	}
	return runErr
}
