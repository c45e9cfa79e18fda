package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/standly/asrt/internal/errkind"
	"github.com/standly/asrt/internal/reactor"
)

const maxEpollBatch = 512

// srtEpollDriver implements reactor.Driver against SRT's private,
// event-granular epoll facility (srt_epoll_*), per spec.md §4.5 and §9's
// mandate to use the per-socket event mask API rather than the older
// fd-set based one, so error events stay distinguishable from readiness.
// Grounded directly on the teacher's pollServer (pollserver.go): same
// SRT_EPOLL_ENABLE_EMPTY creation flag, same edge-triggered mask, same
// 100ms bounded wait, same event-batch size.
type srtEpollDriver struct {
	eid C.int
}

func newSRTEpollDriver() (*srtEpollDriver, error) {
	eid := C.srt_epoll_create()
	if eid < 0 {
		return nil, mapLastSRTError()
	}
	if C.srt_epoll_set(eid, C.SRT_EPOLL_ENABLE_EMPTY) < 0 {
		C.srt_epoll_release(eid)
		return nil, mapLastSRTError()
	}
	return &srtEpollDriver{eid: eid}, nil
}

func toSRTEvents(mask reactor.EventMask) C.int {
	var ev C.uint
	if mask&reactor.Readable != 0 {
		ev |= C.SRT_EPOLL_IN
	}
	if mask&reactor.Writable != 0 {
		ev |= C.SRT_EPOLL_OUT
	}
	// Error interest is implied whenever any direction is armed, per
	// spec.md §3's PendingOp invariant.
	ev |= C.SRT_EPOLL_ERR
	ev |= C.SRT_EPOLL_ET
	return *(*C.int)(unsafe.Pointer(&ev))
}

func fromSRTEvents(flags C.int) reactor.EventMask {
	u := *(*C.uint)(unsafe.Pointer(&flags))
	var mask reactor.EventMask
	if u&C.SRT_EPOLL_IN != 0 {
		mask |= reactor.Readable
	}
	if u&C.SRT_EPOLL_OUT != 0 {
		mask |= reactor.Writable
	}
	if u&C.SRT_EPOLL_ERR != 0 {
		mask |= reactor.Err
	}
	return mask
}

func (d *srtEpollDriver) Add(h reactor.Handle, mask reactor.EventMask) error {
	events := toSRTEvents(mask)
	if C.srt_epoll_add_usock(d.eid, C.SRTSOCKET(h), &events) == -1 {
		return mapLastSRTError()
	}
	return nil
}

func (d *srtEpollDriver) Update(h reactor.Handle, mask reactor.EventMask) error {
	events := toSRTEvents(mask)
	if C.srt_epoll_update_usock(d.eid, C.SRTSOCKET(h), &events) == -1 {
		return mapLastSRTError()
	}
	return nil
}

func (d *srtEpollDriver) Remove(h reactor.Handle) error {
	state := C.srt_getsockstate(C.SRTSOCKET(h))
	switch state {
	case C.SRTS_BROKEN, C.SRTS_CLOSING, C.SRTS_CLOSED, C.SRTS_NONEXIST:
		// SRT already dropped these sockets from its own epoll
		// bookkeeping internally; removing again is a no-op that would
		// otherwise surface a spurious error.
		return nil
	}
	if C.srt_epoll_remove_usock(d.eid, C.SRTSOCKET(h)) == -1 {
		return mapLastSRTError()
	}
	return nil
}

func (d *srtEpollDriver) Wait(timeout time.Duration) ([]reactor.Event, error) {
	var fds [maxEpollBatch]C.SRT_EPOLL_EVENT
	ms := C.int64_t(timeout / time.Millisecond)
	res := C.srt_epoll_uwait(d.eid, &fds[0], C.int(maxEpollBatch), ms)
	switch {
	case res == 0:
		return nil, nil
	case res < 0:
		if C.srt_getlasterror(nil) == C.SRT_ETIMEOUT {
			return nil, nil
		}
		return nil, mapLastSRTError()
	default:
		n := int(res)
		if n > maxEpollBatch {
			n = maxEpollBatch
		}
		out := make([]reactor.Event, n)
		for i := 0; i < n; i++ {
			out[i] = reactor.Event{
				Handle: reactor.Handle(fds[i].fd),
				Flags:  fromSRTEvents(fds[i].events),
			}
			if out[i].Flags&reactor.Err != 0 {
				out[i].Err = resolveErrorEvent(fds[i].fd)
			}
		}
		return out, nil
	}
}

// resolveErrorEvent implements spec.md §4.5's "resolve a mapped error via
// C1" for an errored handle, rather than reporting one fixed kind for
// every error bit: a listener-side handshake rejection is distinguishable
// from a mid-session connection loss via srt_getrejectreason, which stays
// SRT_REJ_UNKNOWN for any error that isn't a rejection.
func resolveErrorEvent(handle C.SRTSOCKET) error {
	if reason := C.srt_getrejectreason(handle); reason != C.SRT_REJ_UNKNOWN {
		return errkind.NewWithCode(errkind.ConnectionRejected, int(reason), C.GoString(C.srt_rejectreason_str(reason)))
	}
	state := C.srt_getsockstate(handle)
	return errkind.New(errkind.ConnectionLost, fmt.Sprintf("srt epoll reported an error event (state=%d)", int(state)))
}

func (d *srtEpollDriver) Close() error {
	if C.srt_epoll_release(d.eid) == -1 {
		return fmt.Errorf("srt_epoll_release: %w", mapLastSRTError())
	}
	return nil
}
