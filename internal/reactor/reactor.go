// Package reactor implements spec component C5: the single
// event-demultiplexing core that arbitrates concurrent read/write/error
// waiters per SRT handle. It is intentionally free of cgo: it talks to the
// native library only through the Driver interface, so the full waiter
// registration protocol, the three-way event/timer/cancel race, and the
// fused-error fan-out can be exercised in tests with a fake driver.
package reactor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/standly/asrt/internal/errkind"
)

// Logger is the minimal structured-logging surface the reactor needs. The
// root package supplies logbridge.ReactorLogger, which routes through the
// process-wide log sink; tests pass nil and get a no-op logger.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Warnw(string, ...any)  {}

// State is the reactor's lifecycle (spec.md §3 ReactorState).
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
)

// pollInterval bounds the native epoll wait so cancellation and shutdown
// stay responsive, per spec.md §4.5.
const pollInterval = 100 * time.Millisecond

// command is the unit of work posted onto the serialized executor. Exactly
// one goroutine (run) ever mutates the pending-operation table, which is
// the "serialization" spec.md §4.5 mandates without prescribing a specific
// mechanism.
type command interface{ apply(r *Reactor) }

// Reactor is the process-wide singleton core. The root package's bootstrap
// (C8) owns constructing exactly one of these.
type Reactor struct {
	driver Driver
	logger Logger

	cmds chan command

	table map[Handle]*pendingOp

	state atomic.Int32

	pollStopped chan struct{}
	execStopped chan struct{}
	stop        chan struct{}
	stopOnce    func()
}

// New constructs a Reactor bound to driver but does not start its
// goroutines; call Start.
func New(driver Driver, logger Logger) *Reactor {
	if logger == nil {
		logger = nopLogger{}
	}
	r := &Reactor{
		driver:      driver,
		logger:      logger,
		cmds:        make(chan command, 64),
		table:       make(map[Handle]*pendingOp),
		pollStopped: make(chan struct{}),
		execStopped: make(chan struct{}),
		stop:        make(chan struct{}),
	}
	r.state.Store(int32(Starting))
	return r
}

// Start launches the serialized executor and the dedicated polling
// goroutine. It must be called exactly once.
func (r *Reactor) Start() {
	go r.runExecutor()
	go r.runPoll()
	r.state.Store(int32(Running))
}

// State reports the reactor's current lifecycle state.
func (r *Reactor) State() State { return State(r.state.Load()) }

// Shutdown stops the poll loop and executor, completing every remaining
// waiter with Cancelled, and tears down the driver. Idempotent.
func (r *Reactor) Shutdown() {
	if !r.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		if r.state.Load() == int32(Stopped) {
			return
		}
	}
	select {
	case <-r.stop:
		// already closed by a racing Shutdown call
	default:
		close(r.stop)
	}
	<-r.pollStopped
	<-r.execStopped
	_ = r.driver.Close()
	r.state.Store(int32(Stopped))
}

// WaitReadable suspends until h is readable, an error occurs, or ctx is
// cancelled.
func (r *Reactor) WaitReadable(ctx context.Context, h Handle) (EventMask, error) {
	return r.wait(ctx, h, Read, 0)
}

// WaitWritable suspends until h is writable, an error occurs, or ctx is
// cancelled.
func (r *Reactor) WaitWritable(ctx context.Context, h Handle) (EventMask, error) {
	return r.wait(ctx, h, Write, 0)
}

// WaitReadableTimeout is WaitReadable bounded by an additional relative
// deadline, failing with errkind.Timeout if it elapses first.
func (r *Reactor) WaitReadableTimeout(ctx context.Context, h Handle, timeout time.Duration) (EventMask, error) {
	return r.wait(ctx, h, Read, timeout)
}

// WaitWritableTimeout is WaitWritable with a timeout.
func (r *Reactor) WaitWritableTimeout(ctx context.Context, h Handle, timeout time.Duration) (EventMask, error) {
	return r.wait(ctx, h, Write, timeout)
}

func (r *Reactor) wait(ctx context.Context, h Handle, dir Direction, timeout time.Duration) (EventMask, error) {
	if r.State() != Running {
		return 0, errkind.New(errkind.InvalidHandle, "reactor is not running")
	}

	w := newWaiter(dir)
	reg := &registerCmd{handle: h, dir: dir, w: w, reply: make(chan error, 1)}

	select {
	case r.cmds <- reg:
	case <-r.stop:
		return 0, errkind.New(errkind.Cancelled, "reactor is shutting down")
	}

	if err := <-reg.reply; err != nil {
		return 0, err
	}

	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			r.postTimeout(h, dir, w)
		})
	}

	select {
	case res := <-w.done:
		return res.Mask, res.Err
	case <-ctx.Done():
		r.postCancel(h, dir, w)
		res := <-w.done
		return res.Mask, res.Err
	}
}

// CancelHandle synchronously completes every waiter registered for h with
// Cancelled and deregisters h from the driver, per spec.md §4.6's ownership
// constraint that closing a handle must first cancel its own outstanding
// reactor waiters. Callers (SrtSocket.Close, SrtAcceptor.Close) must call
// this before invoking the native close, so SRT cannot reassign h's integer
// id to a new socket while a stale table entry for the old one still
// exists. A no-op if h has no registered waiters, or if the reactor is not
// Running.
func (r *Reactor) CancelHandle(h Handle) {
	done := make(chan struct{})
	cmd := &cancelHandleCmd{handle: h, done: done}
	select {
	case r.cmds <- cmd:
	case <-r.stop:
		return
	}
	select {
	case <-done:
	case <-r.stop:
	}
}

func (r *Reactor) postTimeout(h Handle, dir Direction, w *waiter) {
	select {
	case r.cmds <- &timeoutCmd{handle: h, dir: dir, w: w}:
	case <-r.stop:
	}
}

func (r *Reactor) postCancel(h Handle, dir Direction, w *waiter) {
	select {
	case r.cmds <- &cancelCmd{handle: h, dir: dir, w: w}:
	case <-r.stop:
		// The executor already tore everything down; complete locally so
		// the caller of wait() is never left hanging.
		w.complete(Result{Err: errkind.New(errkind.Cancelled, "reactor shut down")})
	}
}

// runExecutor is the serialized executor: the single goroutine that owns
// r.table. All mutations happen here and nowhere else.
func (r *Reactor) runExecutor() {
	defer close(r.execStopped)
	for {
		select {
		case cmd := <-r.cmds:
			cmd.apply(r)
		case <-r.stop:
			r.drainShutdown()
			return
		}
	}
}

// drainShutdown completes every remaining waiter with Cancelled and empties
// the table, per spec.md §4.5's Stopping contract.
func (r *Reactor) drainShutdown() {
	for h, p := range r.table {
		for _, w := range []*waiter{p.readWaiter, p.writeWaiter} {
			if w != nil {
				w.complete(Result{Err: errkind.New(errkind.Cancelled, "reactor shut down")})
			}
		}
		_ = r.driver.Remove(h)
		delete(r.table, h)
	}
	// Drain any commands queued after stop was observed so their reply
	// channels don't block forever.
	for {
		select {
		case cmd := <-r.cmds:
			cmd.apply(r)
		default:
			return
		}
	}
}

// runPoll is the dedicated polling goroutine. It must never be the same
// goroutine as the executor because the native wait call blocks.
func (r *Reactor) runPoll() {
	defer close(r.pollStopped)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		events, err := r.driver.Wait(pollInterval)
		if err != nil {
			r.logger.Warnw("srt epoll wait failed", "error", err)
			continue
		}
		for _, ev := range events {
			select {
			case r.cmds <- &dispatchCmd{handle: ev.Handle, flags: ev.Flags, err: ev.Err}:
			case <-r.stop:
				return
			}
		}
	}
}

// registerCmd implements the waiter registration protocol, spec.md §4.5.
type registerCmd struct {
	handle Handle
	dir    Direction
	w      *waiter
	reply  chan error
}

func (c *registerCmd) apply(r *Reactor) {
	p, exists := r.table[c.handle]
	if !exists {
		p = &pendingOp{}
	}

	if p.waiterFor(c.dir) != nil {
		c.reply <- errkind.New(errkind.ResourceExhausted, fmt.Sprintf("duplicate %v waiter for handle %d", c.dir, c.handle))
		return
	}

	p.setWaiter(c.dir, c.w)
	newMask := p.events | c.dir.eventBit() | Err

	var opErr error
	if !exists {
		opErr = r.driver.Add(c.handle, newMask)
	} else {
		opErr = r.driver.Update(c.handle, newMask)
	}
	if opErr != nil {
		p.clearWaiter(c.dir)
		if p.empty() && exists {
			delete(r.table, c.handle)
		}
		kind := errkind.EpollUpdateFailed
		if !exists {
			kind = errkind.EpollAddFailed
		}
		// The registration step itself didn't hit the duplicate-waiter
		// rule, so reply with success; the actual outcome is delivered
		// through w.done like any other completion.
		c.reply <- nil
		c.w.complete(Result{Err: errkind.New(kind, opErr.Error())})
		return
	}

	p.events = newMask
	r.table[c.handle] = p
	c.reply <- nil
}

// dispatchCmd processes one native epoll event, spec.md §4.5 "Poll loop".
type dispatchCmd struct {
	handle Handle
	flags  EventMask
	err    error
}

func (c *dispatchCmd) apply(r *Reactor) {
	p, ok := r.table[c.handle]
	if !ok {
		// Stale event after deregistration; ignore.
		return
	}

	if c.flags.has(Err) {
		mapped := c.err
		if mapped == nil {
			mapped = errkind.New(errkind.ConnectionLost, "srt epoll reported an error event")
		}
		for _, w := range []*waiter{p.readWaiter, p.writeWaiter} {
			if w != nil {
				w.complete(Result{Err: mapped})
			}
		}
		_ = r.driver.Remove(c.handle)
		delete(r.table, c.handle)
		return
	}

	woke := false
	if c.flags.has(Readable) && p.readWaiter != nil {
		w := p.readWaiter
		p.clearWaiter(Read)
		w.complete(Result{Mask: c.flags})
		woke = true
	}
	if c.flags.has(Writable) && p.writeWaiter != nil {
		w := p.writeWaiter
		p.clearWaiter(Write)
		w.complete(Result{Mask: c.flags})
		woke = true
	}
	if !woke {
		return
	}

	if p.empty() {
		_ = r.driver.Remove(c.handle)
		delete(r.table, c.handle)
		return
	}

	reduced := Err
	if p.readWaiter != nil {
		reduced |= Readable
	}
	if p.writeWaiter != nil {
		reduced |= Writable
	}
	p.events = reduced
	if err := r.driver.Update(c.handle, reduced); err != nil {
		r.logger.Warnw("failed to reduce epoll interest", "handle", c.handle, "error", err)
	}
}

// cancelHandleCmd implements CancelHandle: unlike timeoutCmd/cancelCmd,
// which resolve a single waiter's race, this tears down every waiter
// registered for a handle at once, ahead of the owner closing it natively.
type cancelHandleCmd struct {
	handle Handle
	done   chan struct{}
}

func (c *cancelHandleCmd) apply(r *Reactor) {
	defer close(c.done)
	p, ok := r.table[c.handle]
	if !ok {
		return
	}
	for _, w := range []*waiter{p.readWaiter, p.writeWaiter} {
		if w != nil {
			w.complete(Result{Err: errkind.New(errkind.Cancelled, "handle closed")})
		}
	}
	_ = r.driver.Remove(c.handle)
	delete(r.table, c.handle)
}

// timeoutCmd handles a timer firing for a still-registered waiter.
type timeoutCmd struct {
	handle Handle
	dir    Direction
	w      *waiter
}

func (c *timeoutCmd) apply(r *Reactor) {
	if !c.w.complete(Result{Err: errkind.New(errkind.Timeout, "wait timed out")}) {
		return // event or cancellation already won the race
	}
	deregisterIfCurrent(r, c.handle, c.dir, c.w)
}

// cancelCmd handles caller cancellation observed via ctx.Done().
type cancelCmd struct {
	handle Handle
	dir    Direction
	w      *waiter
}

func (c *cancelCmd) apply(r *Reactor) {
	if !c.w.complete(Result{Err: errkind.New(errkind.Cancelled, "wait was cancelled")}) {
		return // event or timeout already won the race
	}
	deregisterIfCurrent(r, c.handle, c.dir, c.w)
}

// deregisterIfCurrent removes w from the table's slot for (handle, dir) and
// updates or removes epoll interest, but only if w is still the registered
// waiter there (it may already have been replaced or cleared by a
// concurrently-processed dispatch, though with a single serialized executor
// that can only happen across distinct commands, never mid-command).
func deregisterIfCurrent(r *Reactor, h Handle, dir Direction, w *waiter) {
	p, ok := r.table[h]
	if !ok || p.waiterFor(dir) != w {
		return
	}
	p.clearWaiter(dir)
	if p.empty() {
		_ = r.driver.Remove(h)
		delete(r.table, h)
		return
	}
	reduced := Err
	if p.readWaiter != nil {
		reduced |= Readable
	}
	if p.writeWaiter != nil {
		reduced |= Writable
	}
	p.events = reduced
	if err := r.driver.Update(h, reduced); err != nil {
		r.logger.Warnw("failed to reduce epoll interest after timeout/cancel", "handle", h, "error", err)
	}
}

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}
