package asrt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standly/asrt/internal/errkind"
)

// newLoopbackAcceptor binds an ephemeral port on 127.0.0.1 and starts
// listening, returning the bound port for clients to dial.
func newLoopbackAcceptor(t *testing.T, options map[string]string) (*SrtAcceptor, int) {
	t.Helper()
	acc := NewSrtAcceptor(options)
	require.NoError(t, acc.Bind("127.0.0.1", 0))
	require.NoError(t, acc.Listen(8))
	port, err := acc.BoundPort()
	require.NoError(t, err)
	require.NotZero(t, port)
	t.Cleanup(func() { _ = acc.Close() })
	return acc, port
}

// TestLoopbackEcho is scenario S1: connect, exchange one request/response
// pair, and verify both payloads survive the round trip byte for byte.
func TestLoopbackEcho(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	serverSock := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock <- sock
	}()

	client := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))

	server := <-serverSock
	t.Cleanup(func() { _ = server.Close() })
	require.Equal(t, SocketConnected, server.State())

	request := []byte("Hello, SRT! This is a test message.")
	n, err := client.AsyncWritePacket(ctx, request)
	require.NoError(t, err)
	require.Equal(t, len(request), n)

	buf := make([]byte, 1500)
	n, err = server.AsyncReadPacket(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, request, buf[:n])

	reply := []byte("Reply from server")
	n, err = server.AsyncWritePacket(ctx, reply)
	require.NoError(t, err)
	require.Equal(t, len(reply), n)

	n, err = client.AsyncReadPacket(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, reply, buf[:n])
}

// TestConnectTimeout is scenario S2: connecting to an address that will
// never answer fails with Timeout within the requested bound.
func TestConnectTimeout(t *testing.T) {
	client := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client.Close() })

	start := time.Now()
	err := client.AsyncConnect(context.Background(), "192.168.255.255", 12345, time.Second)
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, errkind.IsTimeout(err), "expected a Timeout failure, got %v", err)
	require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	require.LessOrEqual(t, elapsed, 2*time.Second)
	require.Equal(t, SocketFailed, client.State())
}

// TestReadTimeout is scenario S3: on a connected socket with nothing
// arriving, a read bounded by a 100ms context deadline fails once that
// deadline passes. The expired context reaches the reactor as a
// cancellation, so the check accepts Timeout or any error returned after
// the context has expired.
func TestReadTimeout(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	serverSock := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock <- sock
	}()

	client := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client.Close() })
	connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(connectCtx, "127.0.0.1", port, 2*time.Second))

	server := <-serverSock
	t.Cleanup(func() { _ = server.Close() })

	readCtx, readCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer readCancel()
	buf := make([]byte, 64)
	_, err := client.AsyncReadPacket(readCtx, buf)
	require.Error(t, err)
	require.True(t, errkind.IsTimeout(err) || readCtx.Err() != nil)
}

// TestConcurrentAccept is scenario S4: five clients connecting concurrently
// all complete their accepts as Connected sockets.
func TestConcurrentAccept(t *testing.T) {
	const n = 5
	acc, port := newLoopbackAcceptor(t, nil)

	var wg sync.WaitGroup
	accepted := make(chan *SrtSocket, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sock, err := acc.AsyncAccept(context.Background())
			require.NoError(t, err)
			accepted <- sock
		}()
	}

	clients := make([]*SrtSocket, n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		clients[i] = NewSrtSocket(nil)
		require.NoError(t, clients[i].AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))
	}

	wg.Wait()
	close(accepted)

	count := 0
	for sock := range accepted {
		require.Equal(t, SocketConnected, sock.State())
		_ = sock.Close()
		count++
	}
	require.Equal(t, n, count)

	for _, c := range clients {
		_ = c.Close()
	}
}

// TestAdmissionRejection is scenario S5: an admission callback that always
// rejects causes the client's connect attempt to fail.
func TestAdmissionRejection(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)
	require.NoError(t, acc.SetListenerCallback(func(AcceptCandidate) bool {
		return false
	}))

	client := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second)
	require.Error(t, err)
	require.NotEqual(t, SocketConnected, client.State())
}

// TestConnectionLossNotifiesBothDirections is scenario S6: abruptly closing
// the client unblocks a suspended server-side reader and writer within 2s.
func TestConnectionLossNotifiesBothDirections(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	serverSock := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock <- sock
	}()

	client := NewSrtSocket(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))

	server := <-serverSock
	t.Cleanup(func() { _ = server.Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]byte, 64)
		_, err := server.AsyncReadPacket(context.Background(), buf)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		// Drive a large payload so the write has to wait on buffer space
		// rather than completing immediately.
		payload := make([]byte, 1<<20)
		_, err := server.AsyncWritePacket(context.Background(), payload)
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader/writer did not unblock within 2s of connection loss")
	}
	close(errs)
	for err := range errs {
		require.Error(t, err)
	}
}

// TestCloseUnblocksOwnOutstandingWaiter is scenario S8: closing a socket
// while a read is parked on that same socket's handle must cancel the
// waiter synchronously rather than leave it to a stale error event, per
// spec.md §4.6's ownership constraint.
func TestCloseUnblocksOwnOutstandingWaiter(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	serverSock := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock <- sock
	}()

	client := NewSrtSocket(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))

	server := <-serverSock
	t.Cleanup(func() { _ = server.Close() })

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, err := client.AsyncReadPacket(context.Background(), buf)
		readErr <- err
	}()

	// Give the read a moment to actually park on the reactor before
	// closing the same socket out from under it.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-readErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read on a closed socket did not unblock within 2s")
	}
}

// TestShutdownThenGetInstanceRecovers is scenario S9: bootstrap / shutdown /
// bootstrap yields a fresh, functioning reactor, per spec.md §8.
func TestShutdownThenGetInstanceRecovers(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	serverSock := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock <- sock
	}()

	client := NewSrtSocket(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))
	server := <-serverSock

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
	require.NoError(t, acc.Close())
	Shutdown()

	// A fresh acceptor/client pair after Shutdown must come up exactly as
	// it would on a cold start, not fail because the stopped reactor is
	// still being handed out.
	acc2, port2 := newLoopbackAcceptor(t, nil)

	serverSock2 := make(chan *SrtSocket, 1)
	go func() {
		sock, err := acc2.AsyncAccept(context.Background())
		require.NoError(t, err)
		serverSock2 <- sock
	}()

	client2 := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client2.Close() })
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, client2.AsyncConnect(ctx2, "127.0.0.1", port2, 2*time.Second))

	server2 := <-serverSock2
	t.Cleanup(func() { _ = server2.Close() })
	require.Equal(t, SocketConnected, server2.State())
}

// TestStreamIDDelivery is scenario S7: a client-set streamid option is
// visible to the acceptor's admission callback before the handshake
// completes.
func TestStreamIDDelivery(t *testing.T) {
	acc, port := newLoopbackAcceptor(t, nil)

	var gotStreamID string
	var gotHSVersion int
	var mu sync.Mutex
	require.NoError(t, acc.SetListenerCallback(func(c AcceptCandidate) bool {
		mu.Lock()
		gotStreamID = c.StreamID
		gotHSVersion = c.HandshakeVersion
		mu.Unlock()
		return true
	}))

	go func() {
		sock, err := acc.AsyncAccept(context.Background())
		if err == nil {
			_ = sock.Close()
		}
	}()

	client := NewSrtSocket(nil)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.SetOption("streamid", "test-stream-123"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.AsyncConnect(ctx, "127.0.0.1", port, 2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "test-stream-123", gotStreamID)
	require.Contains(t, []int{4, 5}, gotHSVersion)
}
