package kernel

import "go.uber.org/zap"

// FatalHook is called by Fatal before the kernel halts the process. Tests
// override it to observe the fatal condition instead of exiting.
var FatalHook = func() {}

// Fatal reports an unrecoverable kernel condition (SPEC_FULL.md §7: stack
// overflow detection, an assertion failing inside the scheduler itself,
// use of a destroyed kernel object). Unlike an ordinary operation error,
// there is no sensible return path: the log record is written first so the
// cause survives a restart, then FatalHook runs (by default a no-op; a
// real deployment wires it to a watchdog reset), and finally the calling
// goroutine panics so nothing built on top of it can observe a
// half-collapsed kernel.
func (k *Kernel) Fatal(reason string, fields ...zap.Field) {
	k.log.Error("kernel fatal condition", append(fields, zap.String("reason", reason))...)
	FatalHook()
	panic("kernel: fatal: " + reason)
}
