package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>

extern int goAsrtListenCBWrapper(void* opaque, SRTSOCKET ns, int hsversion, const struct sockaddr* peeraddr, const char* streamid);

static int asrtListenCBTrampoline(void* opaque, SRTSOCKET ns, int hsversion, const struct sockaddr* peeraddr, const char* streamid) {
	return goAsrtListenCBWrapper(opaque, ns, hsversion, peeraddr, streamid);
}
*/
import "C"

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"unsafe"

	gopointer "github.com/mattn/go-pointer"

	"github.com/standly/asrt/internal/errkind"
	"github.com/standly/asrt/internal/logbridge"
	"github.com/standly/asrt/internal/reactor"
)

// AcceptorState is spec component C7's AcceptorState.
type AcceptorState int32

const (
	AcceptorFresh AcceptorState = iota
	AcceptorBound
	AcceptorListening
	AcceptorClosed
	AcceptorFailed
)

func (s AcceptorState) String() string {
	switch s {
	case AcceptorFresh:
		return "fresh"
	case AcceptorBound:
		return "bound"
	case AcceptorListening:
		return "listening"
	case AcceptorClosed:
		return "closed"
	case AcceptorFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AcceptCandidate describes one inbound connection attempt as seen by a
// listener admission callback, before SRT finishes the handshake.
type AcceptCandidate struct {
	Handle           int32
	HandshakeVersion int
	StreamID         string
	RemoteIP         net.IP
	RemotePort       int
}

// ListenCallback decides whether to admit a candidate. Returning false
// rejects the handshake (spec.md §4.7's negative-return convention).
type ListenCallback func(AcceptCandidate) bool

// SrtAcceptor is spec component C7: the async wrapper around an SRT
// listening socket. Grounded on the teacher's SrtListener, generalized so
// bind/listen/accept all route through the reactor instead of a blocking
// accept loop.
type SrtAcceptor struct {
	handle atomic.Int32
	opts   *OptionSet
	state  atomic.Int32

	mu       sync.Mutex
	listenCB atomic.Pointer[ListenCallback]
	cbOpaque unsafe.Pointer

	closeOnce sync.Once
}

// NewSrtAcceptor builds a fresh, unbound acceptor with initial options
// staged for every socket it later accepts.
func NewSrtAcceptor(options map[string]string) *SrtAcceptor {
	a := &SrtAcceptor{opts: NewOptionSet(options)}
	a.handle.Store(-1)
	a.state.Store(int32(AcceptorFresh))
	return a
}

// State reports the acceptor's lifecycle state.
func (a *SrtAcceptor) State() AcceptorState { return AcceptorState(a.state.Load()) }

// NativeHandle exposes the raw SRT listening socket descriptor, or -1.
func (a *SrtAcceptor) NativeHandle() int32 { return a.handle.Load() }

// SetOption stages an option applied to the listener itself during Bind and
// inherited by every accepted socket.
func (a *SrtAcceptor) SetOption(name string, value ...string) error {
	return a.opts.Set(name, value...)
}

// Bind resolves host and binds the listening socket to it. Port 0 requests
// an ephemeral port; use BoundPort afterward to learn which one SRT chose.
func (a *SrtAcceptor) Bind(host string, port int) error {
	if !a.state.CompareAndSwap(int32(AcceptorFresh), int32(AcceptorBound)) {
		return errkind.New(errkind.InvalidHandle, "acceptor is already bound")
	}

	ip, err := resolveBindAddr(host)
	if err != nil {
		a.state.Store(int32(AcceptorFailed))
		return errkind.New(errkind.ConnectionSetup, err.Error())
	}

	handle := C.srt_create_socket()
	if int32(handle) == SRT_ERROR {
		a.state.Store(int32(AcceptorFailed))
		return mapLastSRTError()
	}

	if err := setNonBlocking(handle); err != nil {
		C.srt_close(handle)
		a.state.Store(int32(AcceptorFailed))
		return err
	}

	if failed := a.opts.ApplyPre(handle); len(failed) > 0 {
		logbridge.Emit(logbridge.Warning, "acceptor", fmt.Sprintf("pre-bind options failed: %v", failed), "", "", 0)
	}

	sa, err := newSockaddr(ip, port)
	if err != nil {
		C.srt_close(handle)
		a.state.Store(int32(AcceptorFailed))
		return err
	}

	if C.srt_bind(handle, sa.ptr(), sa.length) == C.int(SRT_ERROR) {
		cerr := mapLastSRTError()
		C.srt_close(handle)
		a.state.Store(int32(AcceptorFailed))
		return cerr
	}

	a.handle.Store(int32(handle))
	return nil
}

// resolveBindAddr picks a single local address for Bind, unlike
// AsyncConnect's multi-candidate resolution: a listener binds to exactly
// one address (or the wildcard).
func resolveBindAddr(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("host %q resolved to no addresses", host)
	}
	return ips[0], nil
}

// BoundPort returns the port the listening socket is bound to, resolving
// the ephemeral-port case after Bind(host, 0).
func (a *SrtAcceptor) BoundPort() (int, error) {
	h := a.handle.Load()
	if h < 0 {
		return 0, errkind.New(errkind.InvalidHandle, "acceptor is not bound")
	}
	var sa cSockaddr
	length := C.int(unsafe.Sizeof(sa.storage))
	if C.srt_getsockname(C.SRTSOCKET(h), sa.ptr(), &length) == C.int(SRT_ERROR) {
		return 0, mapLastSRTError()
	}
	_, port, err := sa.toNetAddr()
	return port, err
}

// Listen marks the bound socket as listening with the given backlog.
// Backlog enforcement beyond this point is left to the linked SRT version.
func (a *SrtAcceptor) Listen(backlog int) error {
	h := a.handle.Load()
	if h < 0 {
		return errkind.New(errkind.InvalidHandle, "acceptor is not bound")
	}
	if !a.state.CompareAndSwap(int32(AcceptorBound), int32(AcceptorListening)) {
		return errkind.New(errkind.InvalidHandle, "acceptor is not in a listenable state")
	}
	if C.srt_listen(C.SRTSOCKET(h), C.int(backlog)) == C.int(SRT_ERROR) {
		a.state.Store(int32(AcceptorFailed))
		return mapLastSRTError()
	}
	return nil
}

// SetListenerCallback installs cb as the admission hook invoked inside
// SRT's own handshake processing for every inbound attempt, per spec.md
// §4.7. A nil cb removes it and admits every candidate.
func (a *SrtAcceptor) SetListenerCallback(cb ListenCallback) error {
	h := a.handle.Load()
	if h < 0 {
		return errkind.New(errkind.InvalidHandle, "acceptor is not bound")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if cb == nil {
		a.listenCB.Store(nil)
		if C.srt_listen_callback(C.SRTSOCKET(h), nil, nil) == C.int(SRT_ERROR) {
			return mapLastSRTError()
		}
		if a.cbOpaque != nil {
			gopointer.Unref(a.cbOpaque)
			a.cbOpaque = nil
		}
		return nil
	}

	a.listenCB.Store(&cb)
	if a.cbOpaque == nil {
		a.cbOpaque = gopointer.Save(a)
		if C.srt_listen_callback(C.SRTSOCKET(h), (*C.srt_listen_callback_fn)(C.asrtListenCBTrampoline), a.cbOpaque) == C.int(SRT_ERROR) {
			gopointer.Unref(a.cbOpaque)
			a.cbOpaque = nil
			return mapLastSRTError()
		}
	}
	return nil
}

//export goAsrtListenCBWrapper
func goAsrtListenCBWrapper(opaque unsafe.Pointer, ns C.SRTSOCKET, hsversion C.int, peeraddr *C.struct_sockaddr, streamid *C.char) C.int {
	restored, ok := gopointer.Restore(opaque).(*SrtAcceptor)
	if !ok || restored == nil {
		return 0
	}
	cbPtr := restored.listenCB.Load()
	if cbPtr == nil {
		return 0
	}

	ip, port, _ := readSockaddr(peeraddr)
	candidate := AcceptCandidate{
		Handle:           int32(ns),
		HandshakeVersion: int(hsversion),
		StreamID:         C.GoString(streamid),
		RemoteIP:         ip,
		RemotePort:       port,
	}

	admit := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				logbridge.Emit(logbridge.Error, "acceptor", fmt.Sprintf("listener callback panicked: %v", r), "", "", 0)
				admit = false
			}
		}()
		admit = (*cbPtr)(candidate)
	}()

	if admit {
		return 0
	}
	return -1
}

// AsyncAccept waits for an inbound connection and returns it wrapped as an
// already-Connected SrtSocket, with the acceptor's staged post-options
// applied before the caller ever observes it, per spec.md's decision that
// listener-side option state is fully settled before any I/O is reachable.
func (a *SrtAcceptor) AsyncAccept(ctx context.Context) (*SrtSocket, error) {
	h := a.handle.Load()
	if h < 0 {
		return nil, errkind.New(errkind.InvalidHandle, "acceptor is not listening")
	}

	reactorInst, err := GetInstance()
	if err != nil {
		return nil, err
	}

	for {
		if _, werr := reactorInst.WaitReadable(ctx, reactor.Handle(h)); werr != nil {
			return nil, werr
		}

		newHandle := C.srt_accept(C.SRTSOCKET(h), nil, nil)
		if int32(newHandle) == SRT_ERROR {
			aerr := mapLastSRTError()
			if errkind.IsWouldBlock(aerr) {
				continue
			}
			return nil, aerr
		}

		if failed := a.opts.ApplyPost(newHandle); len(failed) > 0 {
			logbridge.Emit(logbridge.Warning, "acceptor", fmt.Sprintf("post-accept options failed: %v", failed), "", "", 0)
		}

		return newConnectedSrtSocket(newHandle, NewOptionSet(nil)), nil
	}
}

// Close tears the listener down. Idempotent. Like SrtSocket.Close, it
// cancels its own outstanding reactor waiter (a pending AsyncAccept) before
// the native close, so SRT cannot reassign the handle while a stale table
// entry for it still exists.
func (a *SrtAcceptor) Close() error {
	var closeErr error
	a.closeOnce.Do(func() {
		a.state.Store(int32(AcceptorClosed))
		h := a.handle.Swap(-1)
		if h >= 0 {
			if reactorInst, err := GetInstance(); err == nil {
				reactorInst.CancelHandle(reactor.Handle(h))
			}
			if C.srt_close(C.SRTSOCKET(h)) == C.int(SRT_ERROR) {
				closeErr = mapLastSRTError()
			}
		}
		a.mu.Lock()
		if a.cbOpaque != nil {
			gopointer.Unref(a.cbOpaque)
			a.cbOpaque = nil
		}
		a.mu.Unlock()
	})
	return closeErr
}
