// Package scheduler is the leader-only component that turns submission log
// deliveries into worker assignments. It never runs on a follower: its Run
// loop is only ever started under an election.Epoch's context.
package scheduler
