// Package asrt wraps the native SRT transport library in a cancellable,
// timeout-aware async API. Every blocking SRT call is driven through a
// single process-wide reactor instead of SRT's own blocking mode, so
// callers get context.Context cancellation and deadlines on connect,
// accept, send, and receive.
//
// Call GetInstance once at process startup (or let the first socket or
// acceptor call it implicitly) and Shutdown once at process exit.
package asrt
