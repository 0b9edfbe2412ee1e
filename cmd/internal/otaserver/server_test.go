package otaserver

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func testLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return l
}

func firmwareDir(t *testing.T) (string, []byte) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{0xe9, 0x03, 0x02, 0x20}, 4096)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fw.bin"), payload, 0644))
	return dir, payload
}

func TestHandler_servesFirmware(t *testing.T) {
	dir, payload := firmwareDir(t)
	var logs syncBuffer
	srv := httptest.NewServer(Handler(dir, testLogger(&logs)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/fw.bin")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))

	assert.Contains(t, logs.String(), "GET /fw.bin HTTP/1.1")
	assert.Contains(t, logs.String(), "status=200")
	assert.Contains(t, logs.String(), "time=")

	id := resp.Header.Get("X-Request-Id")
	require.NotEmpty(t, id)
	assert.Contains(t, logs.String(), "request="+id)
}

func TestHandler_corsOnEveryResponse(t *testing.T) {
	dir, _ := firmwareDir(t)
	srv := httptest.NewServer(Handler(dir, testLogger(io.Discard)))
	defer srv.Close()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{method: http.MethodGet, path: "/fw.bin", status: http.StatusOK},
		{method: http.MethodHead, path: "/fw.bin", status: http.StatusOK},
		{method: http.MethodGet, path: "/", status: http.StatusOK},
		{method: http.MethodGet, path: "/missing.bin", status: http.StatusNotFound},
		{method: http.MethodGet, path: "/a/b/c", status: http.StatusNotFound},
		{method: http.MethodOptions, path: "/fw.bin", status: http.StatusNoContent},
	}
	for _, test := range tests {
		t.Run(test.method+" "+test.path, func(t *testing.T) {
			req, err := http.NewRequest(test.method, srv.URL+test.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, test.status, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestHandler_directoryListing(t *testing.T) {
	dir, _ := firmwareDir(t)
	srv := httptest.NewServer(Handler(dir, testLogger(io.Discard)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fw.bin")
}

func TestServe_gracefulShutdown(t *testing.T) {
	dir, payload := firmwareDir(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, Handler(dir, testLogger(io.Discard)))
	}()

	resp, err := http.Get("http://" + addr + "/fw.bin")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, payload, body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}

func TestServe_stalledDownloadIsCutOff(t *testing.T) {
	old := shutdownTimeout
	shutdownTimeout = 200 * time.Millisecond
	defer func() { shutdownTimeout = old }()

	dir := t.TempDir()
	big := bytes.Repeat([]byte{0xe9}, 64<<20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fw.bin"), big, 0644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, Handler(dir, testLogger(io.Discard)))
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET /fw.bin HTTP/1.1\r\nHost: "+addr+"\r\n\r\n")
	require.NoError(t, err)
	buf := make([]byte, 512)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	// The client stops reading with most of the image still to come.
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestFirmwareFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.bin", "a.BIN", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.bin"), 0755))

	files, err := FirmwareFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.BIN", "b.bin"}, files)
}

func TestLocalIP(t *testing.T) {
	ip := net.ParseIP(LocalIP())
	assert.NotNil(t, ip)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	var logs syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, testLogger(&logs))
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.bin"), []byte("fw"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "file=new.bin")
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, logs.String(), "ignored.txt")

	cancel()
	assert.NoError(t, <-done)
}
