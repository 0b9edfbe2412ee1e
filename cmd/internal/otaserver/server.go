// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package otaserver serves firmware images over plain HTTP so a device can
// pull them for an over-the-air update.
package otaserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

// shutdownTimeout bounds how long in-flight downloads may finish after an
// interrupt. Connections still open after it are closed.
var shutdownTimeout = 5 * time.Second

const (
	maxConnections  = 32
	requestIDHeader = "X-Request-Id"
	// Only used to pick the outbound interface. Nothing is sent.
	probeAddress = "8.8.8.8:80"
)

// Handler serves dir with permissive CORS headers and logs every request.
func Handler(dir string, log logrus.FieldLogger) http.Handler {
	return logRequests(log, withCORS(http.FileServer(http.Dir(dir))))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func logRequests(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(requestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log.WithFields(logrus.Fields{
			"request": id,
			"remote":  r.RemoteAddr,
			"status":  rec.status,
			"bytes":   rec.bytes,
		}).Infof("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto)
	})
}

// Serve runs the server on ln until ctx is done, then shuts it down
// gracefully. Downloads that outlast shutdownTimeout are cut off and do not
// make Serve fail. At most maxConnections are served at once. The listener is
// closed on return.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln = netutil.LimitListener(ln, maxConnections)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		ln.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// A device is still downloading. Drop it.
		if err := srv.Close(); err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// LocalIP returns the address of the interface that would route to the
// internet, or 127.0.0.1 when there is none. Dialing UDP sends no packets.
func LocalIP() string {
	conn, err := net.Dial("udp", probeAddress)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// FirmwareFiles lists the .bin files directly inside dir.
func FirmwareFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".bin") {
			res = append(res, e.Name())
		}
	}
	sort.Strings(res)
	return res, nil
}

// Watch logs firmware files written into dir until ctx is done.
func Watch(ctx context.Context, dir string, log logrus.FieldLogger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("can't watch '%s': %w", dir, err)
	}

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".bin") {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				log.WithField("file", filepath.Base(event.Name)).Info("firmware added")
			case event.Op&fsnotify.Write == fsnotify.Write:
				log.WithField("file", filepath.Base(event.Name)).Info("firmware modified")
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				log.WithField("file", filepath.Base(event.Name)).Info("firmware removed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case <-ctx.Done():
			return nil
		}
	}
}
