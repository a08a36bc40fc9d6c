// Package reconciler is the leader-only two-pass sweep: pass A recovers
// jobs whose assigned worker has gone silent, pass B re-queues failed jobs
// that still have retry budget.
package reconciler
