// Package detector implements the online race detection engine.
//
// Detector is the shared framework: it owns the per-thread vector clocks,
// the per-thread lock sets, the synchronization object metadata (mutex,
// rwlock, barrier, condition variable, semaphore) and the per-address
// access metadata, all serialized by one internal lock per analyzer
// instance. The concrete analyzers, Djit (pure happens-before), Eraser
// (lockset), RaceTrack (hybrid) and MultiLockHB (multi-lockset
// happens-before), embed the framework and plug in their per-address state
// and their read/write/free processing.
//
// Every analyzer reports through the race database sink; the sink
// deduplicates, so analyzers report at the moment of discovery and do not
// keep global reported-sets of their own.
package detector
