// Package election provides Raft-backed leader election: at most one
// process in a fixed-membership group regards itself as leader at any
// instant, for as long as Raft's internal lease holds.
package election
