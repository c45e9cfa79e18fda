package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/standly/asrt/internal/logbridge"
	"github.com/standly/asrt/internal/optreg"
)

// OptionSet is spec component C3: a per-handle, insertion-ordered bag of
// staged option assignments plus the apply-at-phase driver. Generalizes the
// teacher's map[string]string argument to NewSrtSocket into a reusable,
// gettable/settable type shared by the socket and acceptor wrappers.
type OptionSet struct {
	mu     sync.Mutex
	order  []string
	values map[string]string
}

// NewOptionSet builds an OptionSet from an initial map, e.g. the options
// argument accepted by socket/acceptor constructors.
func NewOptionSet(initial map[string]string) *OptionSet {
	os := &OptionSet{values: make(map[string]string)}
	for k, v := range initial {
		os.Set(k, v)
	}
	return os
}

// Set stages name=value, accepting either the "k=v" textual form or a
// direct (name, value) pair. Returns an error only for a malformed "k=v"
// string; an unknown option name is still staged (spec.md §4.2's
// forward-compatibility rule applies at apply time, not at Set time).
func (o *OptionSet) Set(name string, value ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var v string
	if len(value) == 0 {
		parsedName, parsedValue, err := optreg.SplitAssignment(name)
		if err != nil {
			return err
		}
		name, v = parsedName, parsedValue
	} else {
		v = value[0]
	}

	if _, exists := o.values[name]; !exists {
		o.order = append(o.order, name)
	}
	o.values[name] = v
	return nil
}

// Get returns the staged raw value for name, unchanged since Set, until the
// next apply phase runs.
func (o *OptionSet) Get(name string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[name]
	return v, ok
}

// ApplyPre applies every staged option whose registry phase is Prebind or
// Pre, in registry order, exactly once per spec.md §4.3. Returns the names
// that failed to apply; it never short-circuits on a single failure.
func (o *OptionSet) ApplyPre(handle C.SRTSOCKET) []string {
	return o.applyPhase(handle, optreg.PreOptions, true)
}

// ApplyPost applies every staged option whose registry phase is Post (plus
// the always-legal runtime toggles), in registry order, exactly once.
func (o *OptionSet) ApplyPost(handle C.SRTSOCKET) []string {
	return o.applyPhase(handle, optreg.PostOptions, false)
}

func (o *OptionSet) applyPhase(handle C.SRTSOCKET, phaseOptions []optreg.Spec, isPre bool) []string {
	o.mu.Lock()
	staged := make(map[string]string, len(o.values))
	for k, v := range o.values {
		staged[k] = v
	}
	o.mu.Unlock()

	var failed []string
	for _, spec := range phaseOptions {
		raw, present := staged[spec.Name]
		if !present {
			continue
		}
		if err := applyOne(handle, spec, raw); err != nil {
			logbridge.Emit(logbridge.Warning, "optionset", fmt.Sprintf("option %q: %v", spec.Name, err), "", "", 0)
			failed = append(failed, spec.Name)
		}
	}

	// Unknown names are warned about once, during the Pre phase, rather
	// than once per apply call, to honor spec.md §4.2's forward-
	// compatibility rule (accept, warn, skip) without double-warning.
	if isPre {
		o.warnUnknown(staged)
	}

	return failed
}

func (o *OptionSet) warnUnknown(staged map[string]string) {
	for name := range staged {
		if _, ok := optreg.Lookup(name); !ok && name != "linger" {
			logbridge.Emit(logbridge.Warning, "optionset", fmt.Sprintf("unknown option %q staged; skipped", name), "", "", 0)
		}
	}
}

// applyOne converts raw into SRT's binary representation per spec's type
// rules and calls the matching setter.
func applyOne(handle C.SRTSOCKET, spec optreg.Spec, raw string) error {
	if spec.Name == "linger" {
		v, err := optreg.ParseInt(raw)
		if err != nil {
			return err
		}
		return setSocketLinger(handle, int32(v))
	}

	symbol, ok := sockoptSymbols[spec.Name]
	if !ok {
		return fmt.Errorf("registry entry %q has no bound SRT symbol", spec.Name)
	}

	switch spec.Type {
	case optreg.TInt32:
		v, err := optreg.ParseInt(raw)
		if err != nil {
			return err
		}
		v32 := C.int32_t(v)
		if C.srt_setsockflag(handle, symbol, unsafe.Pointer(&v32), C.int32_t(unsafe.Sizeof(v32))) == -1 {
			return mapLastSRTError()
		}
	case optreg.TInt64:
		v, err := optreg.ParseInt(raw)
		if err != nil {
			return err
		}
		v64 := C.int64_t(v)
		if C.srt_setsockflag(handle, symbol, unsafe.Pointer(&v64), C.int32_t(unsafe.Sizeof(v64))) == -1 {
			return mapLastSRTError()
		}
	case optreg.TBool:
		b, err := optreg.ParseBool(raw)
		if err != nil {
			return err
		}
		var v C.char
		if b {
			v = 1
		}
		if C.srt_setsockflag(handle, symbol, unsafe.Pointer(&v), C.int32_t(unsafe.Sizeof(v))) == -1 {
			return mapLastSRTError()
		}
	case optreg.TEnum:
		n, err := optreg.ParseEnum(spec, raw)
		if err != nil {
			return err
		}
		v32 := C.int32_t(n)
		if C.srt_setsockflag(handle, symbol, unsafe.Pointer(&v32), C.int32_t(unsafe.Sizeof(v32))) == -1 {
			return mapLastSRTError()
		}
	case optreg.TString:
		cstr := C.CString(raw)
		defer C.free(unsafe.Pointer(cstr))
		if C.srt_setsockflag(handle, symbol, unsafe.Pointer(cstr), C.int32_t(len(raw))) == -1 {
			return mapLastSRTError()
		}
	default:
		return fmt.Errorf("unsupported value type for %q", spec.Name)
	}
	return nil
}

// setSocketLinger handles the "linger" special case from spec.md §4.2,
// which requires SRT's struct linger rather than a scalar. Kept from the
// teacher's setSocketLingerOption.
func setSocketLinger(handle C.SRTSOCKET, seconds int32) error {
	var lin syscall.Linger
	lin.Linger = seconds
	if seconds > 0 {
		lin.Onoff = 1
	}
	if C.srt_setsockopt(handle, 0, C.SRTO_LINGER, unsafe.Pointer(&lin), C.int(unsafe.Sizeof(lin))) == SRT_ERROR {
		return mapLastSRTError()
	}
	return nil
}

// getSocketLinger is the read-side counterpart the teacher never exposed
// through its generic option path; added so OptionSet round-trips linger
// the same way it round-trips every other option.
func getSocketLinger(handle C.SRTSOCKET) (int32, error) {
	var lin syscall.Linger
	size := C.int(unsafe.Sizeof(lin))
	if C.srt_getsockopt(handle, 0, C.SRTO_LINGER, unsafe.Pointer(&lin), &size) == SRT_ERROR {
		return 0, mapLastSRTError()
	}
	if lin.Onoff == 0 {
		return 0, nil
	}
	return lin.Linger, nil
}

// SRT_ERROR is the sentinel srt_setsockopt/srt_getsockopt return on
// failure, named the way the teacher names it.
const SRT_ERROR = -1
