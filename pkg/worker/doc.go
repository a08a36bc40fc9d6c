// Package worker implements the agent loop: register membership, heartbeat,
// pull assigned jobs from this worker's inbox, and execute them. The worker
// never decides retries; it only reports terminal-for-this-attempt outcomes.
package worker
