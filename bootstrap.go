package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
*/
import "C"

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standly/asrt/internal/logbridge"
	"github.com/standly/asrt/internal/reactor"
)

// bootstrapMu guards the four fields below, which together track whether a
// live reactor currently exists. A sync.Once cannot express this: spec.md
// §8 requires bootstrap()/shutdown()/bootstrap() to yield a functioning
// reactor again, and Once never re-arms once fired.
var (
	bootstrapMu sync.Mutex
	running     bool
	instance    *reactor.Reactor

	supervisor       *errgroup.Group
	supervisorCancel context.CancelFunc
)

// GetInstance is spec component C8's get_instance(): it lazily starts the
// SRT library, installs the log forwarder, and brings up the process-wide
// reactor. Every call while a reactor is already running returns that same
// instance; a call after Shutdown boots a fresh one.
func GetInstance() (*reactor.Reactor, error) {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if running {
		return instance, nil
	}

	if C.srt_startup() == C.int(SRT_ERROR) {
		return nil, mapLastSRTError()
	}
	installSRTLogForwarder()

	driver, err := newSRTEpollDriver()
	if err != nil {
		uninstallSRTLogForwarder()
		C.srt_cleanup()
		return nil, err
	}

	r := reactor.New(driver, logbridge.ReactorLogger{Area: "reactor"})
	r.Start()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watchReactorHealth(gctx, r) })

	instance = r
	supervisor = g
	supervisorCancel = cancel
	running = true
	return instance, nil
}

// watchReactorHealth is the supervisor goroutine errgroup runs alongside
// the reactor's own executor/poll goroutines. It has nothing to restart
// today (the reactor has no transient failure mode that self-heals), so it
// only watches for an unexpected state transition; its presence keeps the
// lifecycle of "process-wide background work started at bootstrap" in one
// supervised place instead of scattered go statements.
func watchReactorHealth(ctx context.Context, r *reactor.Reactor) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.State() == reactor.Stopped {
				return nil
			}
		}
	}
}

// Shutdown is C8's shutdown(): idempotent teardown of the reactor, the log
// forwarder, and the SRT library itself. A subsequent GetInstance call
// boots a brand new reactor rather than handing back the stopped one.
func Shutdown() {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if !running {
		return
	}

	instance.Shutdown()
	supervisorCancel()
	_ = supervisor.Wait()
	uninstallSRTLogForwarder()
	C.srt_cleanup()

	instance = nil
	supervisor = nil
	supervisorCancel = nil
	running = false
}
