// Package executor runs accepted jobs to completion as containerd
// containers, one per job, and reports exit code and captured output.
package executor
