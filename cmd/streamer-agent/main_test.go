package main

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestParsePortRange(t *testing.T) {
	start, end, err := parsePortRange("50000 60000")
	require.NoError(t, err)
	require.Equal(t, 50000, start)
	require.Equal(t, 60000, end)

	_, _, err = parsePortRange("50000")
	require.Error(t, err)

	_, _, err = parsePortRange("abc 123")
	require.Error(t, err)
}

func TestBindFirstAvailable(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	l, port, err := bindFirstAvailable("127.0.0.1", busyPort, busyPort+5)
	require.NoError(t, err)
	defer l.Close()
	require.NotEqual(t, busyPort, port)
	require.Greater(t, port, busyPort)
	require.Less(t, port, busyPort+5)
}

func TestBindFirstAvailableExhausted(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	_, _, err = bindFirstAvailable("127.0.0.1", busyPort, busyPort+1)
	require.Error(t, err)
}

func TestValidBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, validBearer(req, "secret"))

	req.Header.Set("Authorization", "Bearer secret")
	require.True(t, validBearer(req, "secret"))

	req.Header.Set("Authorization", "Bearer wrong")
	require.False(t, validBearer(req, "secret"))

	req.Header.Set("Authorization", "secret")
	require.False(t, validBearer(req, "secret"))
}

func TestStreamSendReceiveRoundtrip(t *testing.T) {
	content := strings.Repeat("firecrest streamer payload ", 1000)
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "src.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte(content), 0o644))

	dstDir := t.TempDir()
	dstPath := filepath.Join(dstDir, "dst.bin")

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, streamSend(conn, srcPath))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, streamReceive(conn, dstPath, int64(len(content)*2)))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	require.Equal(t, content, string(got))
}

func TestStreamReceiveEnforcesLimit(t *testing.T) {
	dstDir := t.TempDir()
	dstPath := filepath.Join(dstDir, "dst.bin")

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(strings.Repeat("x", 1024))))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("EOF")))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	err = streamReceive(conn, dstPath, 10)
	require.Error(t, err)
}
