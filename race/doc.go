// Package race is the boundary between the instrumentation runtime and the
// detection engine.
//
// # Contract
//
// The stream must preserve intra-thread program order: a thread's records
// arrive in the order the thread executed them. Cross-thread order is
// established downstream; callers need no global ordering.
//
// Thread lifecycle records bracket everything else:
//
//   - ThreadStart(child, parent) must be delivered before the parent's
//     PthreadCreate record, so the child's clock inherits the parent's
//     pre-creation state. Wrappers usually enforce this with a start
//     notification semaphore.
//   - Every record names a thread whose ThreadStart was already delivered;
//     anything else is an invariant violation and aborts the run.
//
// Try-lock and timed-wait "after" records carry the call's return value.
// On a non-zero return the engine skips the synchronization effects, so
// wrappers must pass the value through rather than filter failures out.
//
// Memory accesses carry the instruction handle interned through
// StaticInfo; handles are stable for the whole run and pointer-comparable.
//
// # Typical wiring
//
//	log := logrus.New()
//	knobs := knob.New()
//	ctrl := control.New(log, knobs)
//	ctrl.Register()
//	// ... register and attach analyzers, parse options ...
//	if err := ctrl.Setup(); err != nil { ... }
//	race.Attach(ctrl)
//	defer race.Fini()
package race
