package main

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"crate.quotient.dev/internal/crate"
)

func newTestApp(t *testing.T) *application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config{port: 0, maxConnections: 10}

	m := newMetrics()
	t.Cleanup(func() {
		prometheus.Unregister(m.commandsTotal)
		prometheus.Unregister(m.addsTotal)
		prometheus.Unregister(m.containsTotal)
		prometheus.Unregister(m.containHits)
		prometheus.Unregister(m.batchSize)
		prometheus.Unregister(m.connectionsTotal)
	})

	app := &application{
		config:  cfg,
		logger:  logger,
		filter:  crate.New(1000),
		metrics: m,
		readyCh: make(chan struct{}),
		connSem: semaphore.NewWeighted(int64(cfg.maxConnections)),
	}
	app.router = app.commands()
	return app
}

func dial(t *testing.T, app *application) (net.Conn, *bufio.Reader) {
	t.Helper()
	go func() { _ = app.serve() }()
	<-app.readyCh
	t.Cleanup(func() { _ = app.listener.Close() })

	conn, err := net.Dial("tcp", app.listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to connect to server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestPingServer(t *testing.T) {
	app := newTestApp(t)
	conn, reader := dial(t, app)

	if _, err := conn.Write([]byte("PING\r\n")); err != nil {
		t.Fatalf("failed to write PING: %v", err)
	}
	resp, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp != "+OK\r\n" {
		t.Errorf("PING response = %q, want %q", resp, "+OK\r\n")
	}
}

func TestAddThenContain(t *testing.T) {
	app := newTestApp(t)
	conn, reader := dial(t, app)

	if _, err := conn.Write([]byte("CRATE.ADD hello\r\n")); err != nil {
		t.Fatalf("failed to write CRATE.ADD: %v", err)
	}
	resp, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read ADD response: %v", err)
	}
	if resp != "+OK\r\n" {
		t.Fatalf("ADD response = %q, want %q", resp, "+OK\r\n")
	}

	if _, err := conn.Write([]byte("CRATE.CONTAIN hello\r\n")); err != nil {
		t.Fatalf("failed to write CRATE.CONTAIN: %v", err)
	}
	resp, err = reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read CONTAIN response: %v", err)
	}
	if resp != ":1\r\n" {
		t.Errorf("CONTAIN response for inserted key = %q, want %q", resp, ":1\r\n")
	}
}

func TestStatsReportsFill(t *testing.T) {
	app := newTestApp(t)
	conn, reader := dial(t, app)

	for _, key := range []string{"a", "b", "c"} {
		if _, err := conn.Write([]byte("CRATE.ADD " + key + "\r\n")); err != nil {
			t.Fatalf("failed to write CRATE.ADD: %v", err)
		}
		if _, err := reader.ReadString('\n'); err != nil {
			t.Fatalf("failed to read ADD response: %v", err)
		}
	}

	if _, err := conn.Write([]byte("CRATE.STATS\r\n")); err != nil {
		t.Fatalf("failed to write CRATE.STATS: %v", err)
	}
	// Bulk string reply: "$<len>\r\n<payload>\r\n"
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("failed to read STATS length line: %v", err)
	}
	payload, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read STATS payload: %v", err)
	}
	if payload == "" {
		t.Fatalf("STATS payload was empty")
	}
	if !strings.Contains(payload, "fingerprints:3") {
		t.Errorf("STATS payload = %q, want it to report fingerprints:3", payload)
	}
}

func TestConnectionLimiter(t *testing.T) {
	app := newTestApp(t)
	app.connSem = semaphore.NewWeighted(1)

	go func() { _ = app.serve() }()
	<-app.readyCh
	t.Cleanup(func() { _ = app.listener.Close() })

	first, err := net.Dial("tcp", app.listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to open first connection: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	// Give the server a moment to register the first connection before
	// trying the second; handleConnection's accept-then-launch happens in a
	// separate goroutine from Accept, so a Write round trip forces the sync.
	if _, err := first.Write([]byte("PING\r\n")); err != nil {
		t.Fatalf("failed to write PING on first connection: %v", err)
	}
	if _, err := bufio.NewReader(first).ReadString('\n'); err != nil {
		t.Fatalf("failed to read PING response on first connection: %v", err)
	}

	second, err := net.Dial("tcp", app.listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to open second connection: %v", err)
	}
	defer func() { _ = second.Close() }()

	resp, err := bufio.NewReader(second).ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read rejection response: %v", err)
	}
	if resp != errMaxConnectionsResponse {
		t.Errorf("second connection response = %q, want %q", resp, errMaxConnectionsResponse)
	}
}
