package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatTTL)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("FOREMAN_DATA_DIR", "/var/lib/foreman")
	t.Setenv("FOREMAN_HEARTBEAT_TTL", "30s")
	t.Setenv("FOREMAN_RAFT_PEERS", "a,b,c")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/foreman", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTTL)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.RaftPeers)
}

func TestLoad_RejectsMissingNodeID(t *testing.T) {
	t.Setenv("FOREMAN_RAFT_NODE_ID", "")
	cfg := defaults()
	cfg.RaftNodeID = ""
	err := cfg.validate()
	assert.Error(t, err)
}
