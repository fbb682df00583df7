// Command streamer-agent is the job-side binary job_streamer.sh.tmpl
// launches on the compute node for a streamer transfer: it binds one port
// out of a range, authenticates the caller's WebSocket dial with a
// pre-shared secret, and streams the file in one direction. This binary
// listens and the caller dials in, using the coordinates it was handed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const chunkSize = 1 * 1024 * 1024 // 1 MiB

var rootCmd = &cobra.Command{
	Use:   "streamer-agent",
	Short: "One-shot WebSocket file streamer run from inside an HPC job",
	RunE:  run,
}

var (
	operation    string
	path         string
	host         string
	portRange    string
	secret       string
	waitTimeout  int
	inboundLimit int64
)

func init() {
	rootCmd.Flags().StringVar(&operation, "operation", "", "send (upload to caller) or receive (download from caller)")
	rootCmd.Flags().StringVar(&path, "path", "", "local file path to read from or write to")
	rootCmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to bind")
	rootCmd.Flags().StringVar(&portRange, "port-range", "", "\"start end\" port range to try binding")
	rootCmd.Flags().StringVar(&secret, "secret", "", "bearer secret the caller must present")
	rootCmd.Flags().IntVar(&waitTimeout, "wait-timeout", 3600, "seconds to wait for the caller to connect")
	rootCmd.Flags().Int64Var(&inboundLimit, "inbound-limit", 5*1024*1024*1024, "max bytes accepted on receive")
	rootCmd.MarkFlagRequired("operation")
	rootCmd.MarkFlagRequired("path")
	rootCmd.MarkFlagRequired("port-range")
	rootCmd.MarkFlagRequired("secret")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if operation != "send" && operation != "receive" {
		return fmt.Errorf("--operation must be send or receive, got %q", operation)
	}
	start, end, err := parsePortRange(portRange)
	if err != nil {
		return err
	}

	listener, port, err := bindFirstAvailable(host, start, end)
	if err != nil {
		return fmt.Errorf("binding port range %d-%d: %w", start, end, err)
	}
	fmt.Printf("listening on %s:%d for %s of %s\n", host, port, operation, path)

	done := make(chan error, 1)
	upgrader := websocket.Upgrader{ReadBufferSize: chunkSize, WriteBufferSize: chunkSize}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !validBearer(r, secret) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			done <- fmt.Errorf("rejected connection with invalid secret")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			done <- fmt.Errorf("upgrade failed: %w", err)
			return
		}
		defer conn.Close()
		if operation == "send" {
			done <- streamSend(conn, path)
		} else {
			done <- streamReceive(conn, path, inboundLimit)
		}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-done:
		shutdown(srv)
		if err != nil {
			return err
		}
		fmt.Println("transfer complete")
		return nil
	case <-time.After(time.Duration(waitTimeout) * time.Second):
		shutdown(srv)
		return fmt.Errorf("timed out after %ds waiting for a connection", waitTimeout)
	case <-ctx.Done():
		shutdown(srv)
		return fmt.Errorf("interrupted")
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func parsePortRange(s string) (start, end int, err error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--port-range must be \"start end\", got %q", s)
	}
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port-range start: %w", err)
	}
	end, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port-range end: %w", err)
	}
	return start, end, nil
}

func bindFirstAvailable(host string, start, end int) (net.Listener, int, error) {
	for port := start; port < end; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return l, port, nil
		}
	}
	return nil, 0, errors.New("no available port in range")
}

func validBearer(r *http.Request, want string) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == want
}

// streamSend reads path in chunkSize frames and writes them as binary
// WebSocket messages, followed by a literal "EOF" text frame.
func streamSend(conn *websocket.Conn, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if writeErr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.TextMessage, []byte("EOF"))
}

// streamReceive writes incoming binary frames to path until the literal
// "EOF" text frame, enforcing limit on total bytes accepted.
func streamReceive(conn *websocket.Conn, path string, limit int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var total int64
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType == websocket.TextMessage && string(data) == "EOF" {
			return nil
		}
		total += int64(len(data))
		if total > limit {
			return fmt.Errorf("inbound transfer exceeds limit of %d bytes", limit)
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
	}
}
