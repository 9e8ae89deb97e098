package cancel

import "sync/atomic"

// A shared shutdown request, polled cooperatively by every worker in the
// pipeline.
//
// The flag makes a single one-way transition: once Cancel has been
// called, Canceled reports true forever. Setting it only *requests*
// shutdown; a worker blocked on pipe or device I/O will not observe the
// flag until that call returns, so anything that can block indefinitely
// must be bounded elsewhere (see the encoder's kill deadline).
type Flag struct {
	canceled atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

// Request shutdown. Safe to call from any goroutine, any number of times.
func (f *Flag) Cancel() {
	f.canceled.Store(true)
}

// Whether shutdown has been requested.
func (f *Flag) Canceled() bool {
	return f.canceled.Load()
}
