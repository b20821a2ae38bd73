package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/transport"
)

// freeEndpoint reserves a local port and releases it again
func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().String()
}

// startServer runs a transport with the given handler until the test ends
func startServer(t *testing.T, handler transport.ServerHandleFunc) string {
	t.Helper()
	endpoint := freeEndpoint(t)

	server := NewTCPServerTransport()
	server.RegisterHandler(handler)

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{
			TimeoutSecond: 5,
			Transport:     common.ServerTransportConfig{Endpoint: endpoint, WorkersPerConn: 8, TCPNoDelay: true},
		})
	}()
	t.Cleanup(func() {
		server.Close()
		if err := <-done; err != nil {
			t.Errorf("Listen returned %v", err)
		}
	})

	// wait until the listener accepts connections
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", endpoint); err == nil {
			conn.Close()
			return endpoint
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on %s did not come up", endpoint)
	return ""
}

func connect(t *testing.T, endpoint string) transport.IRPCClientTransport {
	t.Helper()
	client := NewTCPClientTransport()
	if err := client.Connect(common.ClientConfig{
		Endpoints:              []string{endpoint},
		TimeoutSecond:          5,
		RetryCount:             2,
		ConnectionsPerEndpoint: 2,
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSendRoundTrip(t *testing.T) {
	endpoint := startServer(t, func(_ context.Context, shardId uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", shardId, strings.ToUpper(string(req))))
	})
	client := connect(t, endpoint)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Send(context.Background(), uint64(i), []byte(fmt.Sprintf("msg-%d", i)))
			if err != nil {
				t.Errorf("Send %d: %v", i, err)
				return
			}
			if want := fmt.Sprintf("%d:MSG-%d", i, i); string(resp) != want {
				t.Errorf("Send %d: got %q, want %q", i, resp, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestSendRespectsContext(t *testing.T) {
	release := make(chan struct{})
	endpoint := startServer(t, func(ctx context.Context, _ uint64, req []byte) []byte {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return req
	})
	defer close(release)
	client := connect(t, endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Send(ctx, 1, []byte("slow"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send returned after %s, expected about 100ms", elapsed)
	}
}

func TestConnectFailsWithoutServer(t *testing.T) {
	client := NewTCPClientTransport()
	err := client.Connect(common.ClientConfig{Endpoints: []string{freeEndpoint(t)}})
	if err == nil {
		client.Close()
		t.Fatal("expected connect to fail")
	}
}
