package reactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/standly/asrt/internal/errkind"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory stand-in for the SRT epoll, letting the
// pending-operation table and waiter protocol be tested without cgo.
type fakeDriver struct {
	mu       sync.Mutex
	armed    map[Handle]EventMask
	injected chan Event
	closed   bool

	addErr    error
	updateErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		armed:    make(map[Handle]EventMask),
		injected: make(chan Event, 64),
	}
}

func (f *fakeDriver) Add(h Handle, mask EventMask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.armed[h] = mask
	return nil
}

func (f *fakeDriver) Update(h Handle, mask EventMask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.armed[h] = mask
	return nil
}

func (f *fakeDriver) Remove(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, h)
	return nil
}

func (f *fakeDriver) Wait(timeout time.Duration) ([]Event, error) {
	select {
	case ev := <-f.injected:
		evs := []Event{ev}
		// Drain any further already-queued events without blocking, to
		// mimic a single uwait call returning a batch.
		for {
			select {
			case more := <-f.injected:
				evs = append(evs, more)
			default:
				return evs, nil
			}
		}
	case <-time.After(timeout):
		return nil, nil
	}
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) inject(ev Event) { f.injected <- ev }

func (f *fakeDriver) isArmed(h Handle) (EventMask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.armed[h]
	return m, ok
}

func newTestReactor(t *testing.T) (*Reactor, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	r := New(d, nil)
	r.Start()
	t.Cleanup(r.Shutdown)
	return r, d
}

func TestWaitReadableSucceedsOnEvent(t *testing.T) {
	r, d := newTestReactor(t)

	resultCh := make(chan struct {
		mask EventMask
		err  error
	}, 1)
	go func() {
		mask, err := r.WaitReadable(context.Background(), 7)
		resultCh <- struct {
			mask EventMask
			err  error
		}{mask, err}
	}()

	require.Eventually(t, func() bool {
		_, ok := d.isArmed(7)
		return ok
	}, time.Second, time.Millisecond)

	d.inject(Event{Handle: 7, Flags: Readable})

	res := <-resultCh
	require.NoError(t, res.err)
	require.True(t, res.mask.has(Readable))
}

func TestDuplicateWaiterIsResourceExhausted(t *testing.T) {
	r, _ := newTestReactor(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = r.WaitReadable(ctx, 3)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first registration land

	_, err := r.WaitReadable(context.Background(), 3)
	require.Error(t, err)
	var kindErr *errkind.Error
	require.ErrorAs(t, err, &kindErr)
	require.Equal(t, errkind.ResourceExhausted, kindErr.Kind)
}

func TestErrorEventNotifiesBothWaitersExactlyOnce(t *testing.T) {
	r, d := newTestReactor(t)

	readDone := make(chan error, 1)
	writeDone := make(chan error, 1)
	go func() {
		_, err := r.WaitReadable(context.Background(), 11)
		readDone <- err
	}()
	go func() {
		_, err := r.WaitWritable(context.Background(), 11)
		writeDone <- err
	}()

	require.Eventually(t, func() bool {
		mask, ok := d.isArmed(11)
		return ok && mask.has(Readable) && mask.has(Writable)
	}, time.Second, time.Millisecond)

	d.inject(Event{Handle: 11, Flags: Err})

	readErr := <-readDone
	writeErr := <-writeDone
	require.True(t, errkind.IsConnectionLost(readErr))
	require.True(t, errkind.IsConnectionLost(writeErr))

	_, stillArmed := d.isArmed(11)
	require.False(t, stillArmed, "handle must be removed from epoll after error fan-out")
}

func TestPartialWakeKeepsRemainingDirectionArmed(t *testing.T) {
	r, d := newTestReactor(t)

	readDone := make(chan EventMask, 1)
	writeDone := make(chan EventMask, 1)
	go func() {
		mask, _ := r.WaitReadable(context.Background(), 5)
		readDone <- mask
	}()
	go func() {
		mask, _ := r.WaitWritable(context.Background(), 5)
		writeDone <- mask
	}()

	require.Eventually(t, func() bool {
		mask, ok := d.isArmed(5)
		return ok && mask.has(Readable) && mask.has(Writable)
	}, time.Second, time.Millisecond)

	// Only readable fires first.
	d.inject(Event{Handle: 5, Flags: Readable})
	<-readDone

	// Write interest must still be armed; a later write event must still
	// be delivered (no lost edge).
	require.Eventually(t, func() bool {
		mask, ok := d.isArmed(5)
		return ok && mask.has(Writable) && !mask.has(Readable)
	}, time.Second, time.Millisecond)

	d.inject(Event{Handle: 5, Flags: Writable})
	<-writeDone

	require.Eventually(t, func() bool {
		_, ok := d.isArmed(5)
		return !ok
	}, time.Second, time.Millisecond)
}

func TestTimeoutFiresWhenNoReadinessArrives(t *testing.T) {
	r, _ := newTestReactor(t)

	_, err := r.WaitReadableTimeout(context.Background(), 9, 50*time.Millisecond)
	require.True(t, errkind.IsTimeout(err))
}

func TestCancellationWinsRaceAgainstLateEvent(t *testing.T) {
	r, d := newTestReactor(t)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := r.WaitReadable(ctx, 13)
		resultCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := d.isArmed(13)
		return ok
	}, time.Second, time.Millisecond)

	cancel()
	err := <-resultCh
	require.True(t, errkind.IsCancelled(err))

	// A stale event for a now-deregistered handle must be silently
	// dropped, not delivered to a future waiter.
	d.inject(Event{Handle: 13, Flags: Readable})
	time.Sleep(20 * time.Millisecond)
}

func TestShutdownCompletesOutstandingWaitersWithCancelled(t *testing.T) {
	d := newFakeDriver()
	r := New(d, nil)
	r.Start()

	resultCh := make(chan error, 1)
	go func() {
		_, err := r.WaitReadable(context.Background(), 21)
		resultCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := d.isArmed(21)
		return ok
	}, time.Second, time.Millisecond)

	r.Shutdown()
	err := <-resultCh
	require.True(t, errkind.IsCancelled(err))
	require.Equal(t, Stopped, r.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	d := newFakeDriver()
	r := New(d, nil)
	r.Start()
	r.Shutdown()
	r.Shutdown() // must not panic or deadlock
	require.Equal(t, Stopped, r.State())
}

func TestEpollAddFailureCompletesWaiterImmediately(t *testing.T) {
	d := newFakeDriver()
	d.addErr = errAddBoom
	r := New(d, nil)
	r.Start()
	defer r.Shutdown()

	_, err := r.WaitReadable(context.Background(), 99)
	var kindErr *errkind.Error
	require.ErrorAs(t, err, &kindErr)
	require.Equal(t, errkind.EpollAddFailed, kindErr.Kind)
}

var errAddBoom = errAdd{}

type errAdd struct{}

func (errAdd) Error() string { return "epoll add failed" }

func TestErrorEventPrefersDriverSuppliedError(t *testing.T) {
	r, d := newTestReactor(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := r.WaitReadable(context.Background(), 31)
		resultCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := d.isArmed(31)
		return ok
	}, time.Second, time.Millisecond)

	rejected := errkind.NewWithCode(errkind.ConnectionRejected, 1002, "peer rejected handshake")
	d.inject(Event{Handle: 31, Flags: Err, Err: rejected})

	err := <-resultCh
	var kindErr *errkind.Error
	require.ErrorAs(t, err, &kindErr)
	require.Equal(t, errkind.ConnectionRejected, kindErr.Kind)
	require.Equal(t, 1002, kindErr.Code)
}

func TestCancelHandleCancelsOutstandingWaiter(t *testing.T) {
	r, d := newTestReactor(t)

	readDone := make(chan error, 1)
	writeDone := make(chan error, 1)
	go func() {
		_, err := r.WaitReadable(context.Background(), 42)
		readDone <- err
	}()
	go func() {
		_, err := r.WaitWritable(context.Background(), 42)
		writeDone <- err
	}()

	require.Eventually(t, func() bool {
		mask, ok := d.isArmed(42)
		return ok && mask.has(Readable) && mask.has(Writable)
	}, time.Second, time.Millisecond)

	// Simulates SrtSocket.Close/SrtAcceptor.Close cancelling their own
	// handle's waiters before the native close, per spec.md §4.6.
	r.CancelHandle(42)

	readErr := <-readDone
	writeErr := <-writeDone
	require.True(t, errkind.IsCancelled(readErr))
	require.True(t, errkind.IsCancelled(writeErr))

	_, stillArmed := d.isArmed(42)
	require.False(t, stillArmed, "handle must be deregistered from the driver after CancelHandle")
}

func TestCancelHandleOnUnregisteredHandleIsNoop(t *testing.T) {
	r, _ := newTestReactor(t)

	// No waiter was ever registered for this handle; CancelHandle must
	// return promptly rather than blocking forever.
	done := make(chan struct{})
	go func() {
		r.CancelHandle(77)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CancelHandle on an unregistered handle did not return")
	}
}

func TestCancelHandleAfterShutdownDoesNotBlock(t *testing.T) {
	d := newFakeDriver()
	r := New(d, nil)
	r.Start()
	r.Shutdown()

	done := make(chan struct{})
	go func() {
		r.CancelHandle(5)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CancelHandle after Shutdown did not return")
	}
}
