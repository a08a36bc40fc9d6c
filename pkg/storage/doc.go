// Package storage is the Job Store: a BoltDB-backed (or in-memory, for
// tests) transactional record of every job's state, assignment, retry
// count, and output. It is the only structure the rest of the system treats
// as authoritative — the submission log, inboxes, and membership set are
// all derived and reconstructible from it.
package storage
