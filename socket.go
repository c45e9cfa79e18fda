package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/standly/asrt/internal/errkind"
	"github.com/standly/asrt/internal/logbridge"
	"github.com/standly/asrt/internal/reactor"
)

// SocketState is spec component C6's SocketState: the lifecycle of one
// SrtSocket independent of the underlying SRT connection's own state
// machine.
type SocketState int32

const (
	SocketFresh SocketState = iota
	SocketConnecting
	SocketConnected
	SocketClosing
	SocketClosed
	SocketFailed
)

func (s SocketState) String() string {
	switch s {
	case SocketFresh:
		return "fresh"
	case SocketConnecting:
		return "connecting"
	case SocketConnected:
		return "connected"
	case SocketClosing:
		return "closing"
	case SocketClosed:
		return "closed"
	case SocketFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectCallback is invoked once when an AsyncConnect call resolves, on
// success or failure, per spec.md §4.6. A call rejected up front because
// the socket is not Fresh returns its error without invoking it.
type ConnectCallback func(sock *SrtSocket, err error)

// SrtSocket is spec component C6: the async wrapper around one SRT
// connection. Grounded on the teacher's SrtSocket (srtsocket.go /
// srtsocketoptions.go), reshaped so every blocking SRT call is routed
// through the reactor (C5) instead of the teacher's own pollServer/polling
// goroutine.
type SrtSocket struct {
	id     uuid.UUID    // correlation id threaded through this socket's log lines
	handle atomic.Int32 // C.SRTSOCKET; -1 when unset or closed
	opts   *OptionSet

	state     atomic.Int32
	failedErr atomic.Pointer[errkind.Error]
	connectCB atomic.Pointer[ConnectCallback]

	closeOnce sync.Once
}

// NewSrtSocket builds a fresh, unconnected socket with initial options
// staged from options (spec.md §3's OptionAssignment set).
func NewSrtSocket(options map[string]string) *SrtSocket {
	s := &SrtSocket{id: uuid.New(), opts: NewOptionSet(options)}
	s.handle.Store(-1)
	s.state.Store(int32(SocketFresh))
	return s
}

// newConnectedSrtSocket wraps a handle SRT has already accepted, used by
// the acceptor (C7) to hand back a Connected-state socket without going
// through AsyncConnect.
func newConnectedSrtSocket(handle C.SRTSOCKET, opts *OptionSet) *SrtSocket {
	s := &SrtSocket{id: uuid.New(), opts: opts}
	s.handle.Store(int32(handle))
	s.state.Store(int32(SocketConnected))
	return s
}

// ID returns the correlation id this socket's log lines are tagged with.
func (s *SrtSocket) ID() uuid.UUID { return s.id }

// State reports the wrapper's current lifecycle state.
func (s *SrtSocket) State() SocketState { return SocketState(s.state.Load()) }

// IsOpen reports whether the socket is usable for reads and writes.
func (s *SrtSocket) IsOpen() bool { return s.State() == SocketConnected }

// NativeHandle exposes the raw SRT socket descriptor, or -1 if none is
// bound yet.
func (s *SrtSocket) NativeHandle() int32 { return s.handle.Load() }

// FailedError returns the error that drove the socket into SocketFailed,
// or nil if it never failed.
func (s *SrtSocket) FailedError() error {
	if e := s.failedErr.Load(); e != nil {
		return e
	}
	return nil
}

// SetOption stages an option for the next apply phase. Safe to call before
// AsyncConnect or between connect and close (it only affects future apply
// calls, which for an already-connected socket means none — per spec.md
// §4.2, both phases run exactly once during connect/accept).
func (s *SrtSocket) SetOption(name string, value ...string) error {
	return s.opts.Set(name, value...)
}

// SetConnectCallback installs cb to be invoked once AsyncConnect resolves,
// on either branch. A nil cb clears it.
func (s *SrtSocket) SetConnectCallback(cb ConnectCallback) {
	if cb == nil {
		s.connectCB.Store(nil)
		return
	}
	s.connectCB.Store(&cb)
}

func (s *SrtSocket) invokeConnectCallback(err error) {
	cbPtr := s.connectCB.Load()
	if cbPtr == nil {
		return
	}
	cb := *cbPtr
	defer func() {
		if r := recover(); r != nil {
			logbridge.Emit(logbridge.Error, "socket", fmt.Sprintf("[%s] connect callback panicked: %v", s.id, r), "", "", 0)
		}
	}()
	cb(s, err)
}

// AsyncConnect resolves host, tries each candidate address in order until
// one connects, the list is exhausted, or the timeout budget runs out, and
// reports the outcome both as a return value and through the connect
// callback, per spec.md §4.6. connectTimeout of zero means no deadline
// beyond ctx's own.
func (s *SrtSocket) AsyncConnect(ctx context.Context, host string, port int, connectTimeout time.Duration) error {
	if !s.state.CompareAndSwap(int32(SocketFresh), int32(SocketConnecting)) {
		err := errkind.New(errkind.InvalidHandle, "socket is not in a connectable state")
		return err
	}

	ips, err := resolveAddrs(host, port)
	if err != nil {
		wrapped := errkind.New(errkind.ConnectionSetup, err.Error())
		s.failConnect(wrapped)
		return wrapped
	}

	var deadline time.Time
	if connectTimeout > 0 {
		deadline = time.Now().Add(connectTimeout)
	}

	var lastErr error
	for _, ip := range ips {
		remaining := connectTimeout
		if connectTimeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				lastErr = errkind.New(errkind.Timeout, "connect timed out")
				break
			}
		}
		if cerr := s.tryConnect(ctx, ip, port, remaining); cerr != nil {
			lastErr = cerr
			continue
		}

		if failed := s.opts.ApplyPost(C.SRTSOCKET(s.handle.Load())); len(failed) > 0 {
			logbridge.Emit(logbridge.Warning, "socket", fmt.Sprintf("[%s] post-connect options failed: %v", s.id, failed), "", "", 0)
		}

		s.state.Store(int32(SocketConnected))
		s.invokeConnectCallback(nil)
		return nil
	}

	if lastErr == nil {
		lastErr = errkind.New(errkind.ConnectionSetup, "host resolved to no usable address")
	}
	s.failConnect(lastErr)
	return lastErr
}

func (s *SrtSocket) failConnect(err error) {
	s.state.Store(int32(SocketFailed))
	var ke *errkind.Error
	if !errors.As(err, &ke) {
		ke = errkind.New(errkind.Other, err.Error())
	}
	s.failedErr.Store(ke)
	s.invokeConnectCallback(err)
}

// tryConnect attempts one candidate address: create, configure, initiate,
// await writability, and verify the resulting connection state. On any
// failure the partially-created native socket is closed before returning.
func (s *SrtSocket) tryConnect(ctx context.Context, ip net.IP, port int, timeout time.Duration) error {
	handle := C.srt_create_socket()
	if int32(handle) == SRT_ERROR {
		return mapLastSRTError()
	}

	if err := setNonBlocking(handle); err != nil {
		C.srt_close(handle)
		return err
	}

	if failed := s.opts.ApplyPre(handle); len(failed) > 0 {
		logbridge.Emit(logbridge.Warning, "socket", fmt.Sprintf("[%s] pre-connect options failed: %v", s.id, failed), "", "", 0)
	}

	sa, err := newSockaddr(ip, port)
	if err != nil {
		C.srt_close(handle)
		return err
	}

	if C.srt_connect(handle, sa.ptr(), sa.length) == C.int(SRT_ERROR) {
		cerr := mapLastSRTError()
		if !errkind.IsWouldBlock(cerr) {
			C.srt_close(handle)
			return cerr
		}
	}

	reactorInst, err := GetInstance()
	if err != nil {
		C.srt_close(handle)
		return err
	}

	var waitErr error
	if timeout > 0 {
		_, waitErr = reactorInst.WaitWritableTimeout(ctx, reactor.Handle(handle), timeout)
	} else {
		_, waitErr = reactorInst.WaitWritable(ctx, reactor.Handle(handle))
	}
	if waitErr != nil {
		C.srt_close(handle)
		return waitErr
	}

	if state := C.srt_getsockstate(handle); state != C.SRTS_CONNECTED {
		cerr := mapLastSRTError()
		C.srt_close(handle)
		return cerr
	}

	s.handle.Store(int32(handle))
	return nil
}

func setNonBlocking(handle C.SRTSOCKET) error {
	var off C.char = 0
	if C.srt_setsockflag(handle, C.SRTO_RCVSYN, unsafe.Pointer(&off), C.int32_t(unsafe.Sizeof(off))) == SRT_ERROR {
		return mapLastSRTError()
	}
	if C.srt_setsockflag(handle, C.SRTO_SNDSYN, unsafe.Pointer(&off), C.int32_t(unsafe.Sizeof(off))) == SRT_ERROR {
		return mapLastSRTError()
	}
	return nil
}

// AsyncWritePacket sends one message, retrying across writability waits
// until it succeeds, ctx is cancelled, or a non-recoverable error occurs.
// Unlike the teacher's write path, which retries exactly once after a
// single wait, this loops, since spec.md's cancellable-future model has no
// notion of "give up after one attempt" short of the caller's own ctx.
func (s *SrtSocket) AsyncWritePacket(ctx context.Context, data []byte) (int, error) {
	for {
		h := s.handle.Load()
		if h < 0 {
			return 0, errkind.New(errkind.InvalidHandle, "socket is not connected")
		}

		var ptr *C.char
		if len(data) > 0 {
			ptr = (*C.char)(unsafe.Pointer(&data[0]))
		}
		n := C.srt_sendmsg2(C.SRTSOCKET(h), ptr, C.int(len(data)), nil)
		if n >= 0 {
			return int(n), nil
		}

		err := mapLastSRTError()
		if !errkind.IsWouldBlock(err) {
			return 0, err
		}

		reactorInst, rerr := GetInstance()
		if rerr != nil {
			return 0, rerr
		}
		if _, werr := reactorInst.WaitWritable(ctx, reactor.Handle(h)); werr != nil {
			return 0, werr
		}
	}
}

// AsyncReadPacket receives one message into buf, retrying across
// readability waits the same way AsyncWritePacket retries across
// writability waits.
func (s *SrtSocket) AsyncReadPacket(ctx context.Context, buf []byte) (int, error) {
	for {
		h := s.handle.Load()
		if h < 0 {
			return 0, errkind.New(errkind.InvalidHandle, "socket is not connected")
		}

		var ptr *C.char
		if len(buf) > 0 {
			ptr = (*C.char)(unsafe.Pointer(&buf[0]))
		}
		n := C.srt_recvmsg2(C.SRTSOCKET(h), ptr, C.int(len(buf)), nil)
		if n >= 0 {
			return int(n), nil
		}

		err := mapLastSRTError()
		if !errkind.IsWouldBlock(err) {
			return 0, err
		}

		reactorInst, rerr := GetInstance()
		if rerr != nil {
			return 0, rerr
		}
		if _, werr := reactorInst.WaitReadable(ctx, reactor.Handle(h)); werr != nil {
			return 0, werr
		}
	}
}

// LocalAddress returns the locally bound endpoint.
func (s *SrtSocket) LocalAddress() (net.IP, int, error) {
	h := s.handle.Load()
	if h < 0 {
		return nil, 0, errkind.New(errkind.InvalidHandle, "socket has no native handle")
	}
	var sa cSockaddr
	length := C.int(unsafe.Sizeof(sa.storage))
	if C.srt_getsockname(C.SRTSOCKET(h), sa.ptr(), &length) == C.int(SRT_ERROR) {
		return nil, 0, mapLastSRTError()
	}
	return sa.toNetAddr()
}

// RemoteAddress returns the connected peer's endpoint.
func (s *SrtSocket) RemoteAddress() (net.IP, int, error) {
	h := s.handle.Load()
	if h < 0 {
		return nil, 0, errkind.New(errkind.InvalidHandle, "socket has no native handle")
	}
	var sa cSockaddr
	length := C.int(unsafe.Sizeof(sa.storage))
	if C.srt_getpeername(C.SRTSOCKET(h), sa.ptr(), &length) == C.int(SRT_ERROR) {
		return nil, 0, mapLastSRTError()
	}
	return sa.toNetAddr()
}

// Close tears the socket down. Idempotent. Per spec.md §3 and §4.6, any of
// this socket's own outstanding reactor waiters are cancelled synchronously
// before the native close, rather than left to be fanned out later by a
// stale error event — SRT can reassign a closed handle's integer id to a
// new socket before the poll loop ever gets there.
func (s *SrtSocket) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.state.Store(int32(SocketClosing))
		h := s.handle.Swap(-1)
		if h >= 0 {
			if reactorInst, err := GetInstance(); err == nil {
				reactorInst.CancelHandle(reactor.Handle(h))
			}
			if C.srt_close(C.SRTSOCKET(h)) == C.int(SRT_ERROR) {
				closeErr = mapLastSRTError()
			}
		}
		s.state.Store(int32(SocketClosed))
	})
	return closeErr
}
