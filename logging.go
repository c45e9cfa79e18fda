package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
#include <stdlib.h>

extern void goAsrtLogCBWrapper(void* opaque, int level, char* file, int line, char* area, char* message);

static void asrtLogCBTrampoline(void* opaque, int level, const char* file, int line, const char* area, const char* message) {
	goAsrtLogCBWrapper(opaque, level, (char*)file, line, (char*)area, (char*)message);
}
*/
import "C"

import (
	"sync"
	"unsafe"

	gopointer "github.com/mattn/go-pointer"

	"github.com/standly/asrt/internal/logbridge"
)

// SrtLogFA identifies one of SRT's internal log "facilities"; kept from the
// teacher verbatim since the numbering is part of SRT's own ABI.
type SrtLogFA int

const (
	SrtLogFAGeneral  SrtLogFA = 0
	SrtLogFASockMgmt SrtLogFA = 1
	SrtLogFAConn     SrtLogFA = 2
	SrtLogFAXTimer   SrtLogFA = 3
	SrtLogFATsbpd    SrtLogFA = 4
	SrtLogFARsrc     SrtLogFA = 5
	SrtLogFAHaiCrypt SrtLogFA = 6
	SrtLogFACongest  SrtLogFA = 7
	SrtLogFAPFilter  SrtLogFA = 8
	SrtLogFAAppLog   SrtLogFA = 10
	SrtLogFAAPICtrl  SrtLogFA = 11
	SrtLogFAQueCtrl  SrtLogFA = 13
	SrtLogFAEPollUpd SrtLogFA = 16
	SrtLogFAAPIRecv  SrtLogFA = 21
	SrtLogFABufRecv  SrtLogFA = 22
	SrtLogFAQueRecv  SrtLogFA = 23
	SrtLogFAChnRecv  SrtLogFA = 24
	SrtLogFAGrpRecv  SrtLogFA = 25
	SrtLogFAAPISend  SrtLogFA = 31
	SrtLogFABufSend  SrtLogFA = 32
	SrtLogFAQueSend  SrtLogFA = 33
	SrtLogFAChnSend  SrtLogFA = 34
	SrtLogFAGrpSend  SrtLogFA = 35
	SrtLogFAInternal SrtLogFA = 41
	SrtLogFAQueMgmt  SrtLogFA = 43
	SrtLogFAChnMgmt  SrtLogFA = 44
	SrtLogFAGrpMgmt  SrtLogFA = 45
	SrtLogFAEPollAPI SrtLogFA = 46
)

var (
	srtLogCBPtr     unsafe.Pointer
	srtLogCBPtrLock sync.Mutex
)

// srtLevelToLevel maps SRT's syslog-style numeric log levels onto the
// portable five-level taxonomy from spec.md §4.4.
func srtLevelToLevel(level C.int) logbridge.Level {
	switch int(level) {
	case int(C.LOG_DEBUG):
		return logbridge.Debug
	case int(C.LOG_NOTICE), int(C.LOG_INFO):
		return logbridge.Notice
	case int(C.LOG_WARNING):
		return logbridge.Warning
	case int(C.LOG_ERR):
		return logbridge.Error
	case int(C.LOG_CRIT):
		return logbridge.Critical
	default:
		return logbridge.Notice
	}
}

//export goAsrtLogCBWrapper
func goAsrtLogCBWrapper(_ unsafe.Pointer, level C.int, file *C.char, line C.int, area, message *C.char) {
	// SRT's own emissions carry file+line but no function name, so
	// function is left empty here.
	logbridge.Emit(srtLevelToLevel(level), C.GoString(area), C.GoString(message), C.GoString(file), "", int(line))
}

// installSRTLogForwarder wires SRT's native log handler to logbridge.Emit
// so the wrapper's own logs and SRT's logs flow through the same
// installable sink, per spec.md §4.4. Grounded on the teacher's
// logging.go, which does the same cgo/go-pointer dance for a standalone
// per-process callback; here it is installed unconditionally during
// reactor bootstrap (C8) instead of left for the caller to wire up.
func installSRTLogForwarder() {
	ptr := gopointer.Save(struct{}{})
	C.srt_setloghandler(ptr, (*C.SRT_LOG_HANDLER_FN)(C.asrtLogCBTrampoline))
	storeSRTLogCBPtr(ptr)
}

func uninstallSRTLogForwarder() {
	C.srt_setloghandler(nil, nil)
	storeSRTLogCBPtr(nil)
}

func storeSRTLogCBPtr(ptr unsafe.Pointer) {
	srtLogCBPtrLock.Lock()
	defer srtLogCBPtrLock.Unlock()
	if srtLogCBPtr != nil {
		gopointer.Unref(srtLogCBPtr)
	}
	srtLogCBPtr = ptr
}

// SetLogCallback installs cb as the process-wide sink for both SRT's own
// log emissions and this module's internal diagnostics (C8's
// set_log_callback, passed through to C4). A nil cb restores the default.
func SetLogCallback(cb func(level logbridge.Level, area, message, file, function string, line int)) {
	if cb == nil {
		logbridge.SetSink(nil)
		return
	}
	logbridge.SetSink(logbridge.SinkFunc(cb))
}

var currentLogLevel = logbridge.Notice

// SetLogLevel sets the minimum level SRT forwards to the sink (C8's
// set_log_level).
func SetLogLevel(level logbridge.Level) {
	currentLogLevel = level
	C.srt_setloglevel(C.int(levelToSRTPriority(level)))
}

// GetLogLevel returns the minimum level last set via SetLogLevel. SRT has
// no getter of its own, so this module tracks the last value it installed.
func GetLogLevel() logbridge.Level {
	return currentLogLevel
}

func levelToSRTPriority(level logbridge.Level) int {
	switch level {
	case logbridge.Debug:
		return int(C.LOG_DEBUG)
	case logbridge.Notice:
		return int(C.LOG_NOTICE)
	case logbridge.Warning:
		return int(C.LOG_WARNING)
	case logbridge.Error:
		return int(C.LOG_ERR)
	default:
		return int(C.LOG_CRIT)
	}
}

// SrtAddLogFA enables a log facility, passed straight through to SRT.
func SrtAddLogFA(fa SrtLogFA) { C.srt_addlogfa(C.int(fa)) }

// SrtDelLogFA disables a log facility, passed straight through to SRT.
func SrtDelLogFA(fa SrtLogFA) { C.srt_dellogfa(C.int(fa)) }

// SrtResetLogFA replaces the enabled facility set, passed straight through
// to SRT. An empty list resets to SRT's compiled-in default.
func SrtResetLogFA(falist []SrtLogFA) {
	if len(falist) == 0 {
		C.srt_resetlogfa(nil, 0)
		return
	}
	cArray := make([]C.int, len(falist))
	for i, fa := range falist {
		cArray[i] = C.int(fa)
	}
	C.srt_resetlogfa(&cArray[0], C.size_t(len(cArray)))
}
