package spanz

import "sync/atomic"

var global atomic.Pointer[Tracer]

// SetGlobal registers t as the process-wide tracer. Only the first call with
// a non-nil tracer succeeds; later calls return ErrGlobalTracerSet.
func SetGlobal(t *Tracer) error {
	if t == nil {
		return ErrInvalidTracer
	}
	if !global.CompareAndSwap(nil, t) {
		return ErrGlobalTracerSet
	}
	return nil
}

// Global returns the registered tracer, or nil if none has been set.
func Global() *Tracer {
	return global.Load()
}

// resetGlobal clears the registration. Tests only.
func resetGlobal() {
	global.Store(nil)
}
