package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
*/
import "C"

import (
	"github.com/standly/asrt/internal/errkind"
)

// init registers every SRT numeric error code this module is aware of
// against the portable Kind taxonomy (spec component C1). Unregistered
// codes fall through to errkind.Other, which preserves the raw code.
func init() {
	reg := errkind.Register
	reg(int(C.SRT_ECONNSETUP), errkind.ConnectionSetup)
	reg(int(C.SRT_ENOSERVER), errkind.ConnectionSetup)
	reg(int(C.SRT_ECONNREJ), errkind.ConnectionRejected)
	reg(int(C.SRT_ESOCKFAIL), errkind.ConnectionSetup)
	reg(int(C.SRT_ESECFAIL), errkind.ConnectionRejected)
	reg(int(C.SRT_ESCLOSED), errkind.InvalidHandle)

	reg(int(C.SRT_ECONNFAIL), errkind.ConnectionLost)
	reg(int(C.SRT_ECONNLOST), errkind.ConnectionLost)
	reg(int(C.SRT_ENOCONN), errkind.InvalidHandle)

	reg(int(C.SRT_ERESOURCE), errkind.ResourceExhausted)
	reg(int(C.SRT_ETHREAD), errkind.ResourceExhausted)
	reg(int(C.SRT_ENOBUF), errkind.ResourceExhausted)
	reg(int(C.SRT_ESYSOBJ), errkind.ResourceExhausted)

	reg(int(C.SRT_EINVOP), errkind.InvalidHandle)
	reg(int(C.SRT_EBOUNDSOCK), errkind.InvalidHandle)
	reg(int(C.SRT_ECONNSOCK), errkind.InvalidHandle)
	reg(int(C.SRT_EINVPARAM), errkind.InvalidHandle)
	reg(int(C.SRT_EINVSOCK), errkind.InvalidHandle)
	reg(int(C.SRT_EUNBOUNDSOCK), errkind.InvalidHandle)
	reg(int(C.SRT_ENOLISTEN), errkind.InvalidHandle)
	reg(int(C.SRT_ERDVNOSERV), errkind.ConnectionSetup)
	reg(int(C.SRT_ERDVUNBOUND), errkind.ConnectionSetup)
	reg(int(C.SRT_EDUPLISTEN), errkind.ConnectionSetup)
	reg(int(C.SRT_EINVPOLLID), errkind.EpollAddFailed)
	reg(int(C.SRT_EBINDCONFLICT), errkind.ConnectionSetup)

	reg(int(C.SRT_EASYNCFAIL), errkind.WouldBlock)
	reg(int(C.SRT_EASYNCSND), errkind.WouldBlock)
	reg(int(C.SRT_EASYNCRCV), errkind.WouldBlock)
	reg(int(C.SRT_ETIMEOUT), errkind.Timeout)
	reg(int(C.SRT_ECONGEST), errkind.SendFailed)

	reg(int(C.SRT_EPEERERR), errkind.ConnectionLost)
}

// mapLastSRTError implements C1's map_last_srt_error(): it reads SRT's
// thread-local last error and returns the mapped Kind plus the verbatim
// message string.
func mapLastSRTError() *errkind.Error {
	code := int(C.srt_getlasterror(nil))
	msg := C.GoString(C.srt_getlasterror_str())
	return errkind.FromSRTCode(code, msg)
}

// isWouldBlock re-exports errkind's predicate so callers in this package
// don't need to import internal/errkind directly for the common case.
func isWouldBlock(err error) bool { return errkind.IsWouldBlock(err) }
