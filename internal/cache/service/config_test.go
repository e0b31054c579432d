package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"test defaults", func(*Config) {}, ""},
		{"missing node id", func(c *Config) { c.NodeID = "" }, "node id"},
		{"W above R", func(c *Config) { c.WriteQuorum = 3 }, "write quorum"},
		{"unknown mode", func(c *Config) { c.Mode = "eventual" }, "eventual"},
		{"dead before suspect", func(c *Config) { c.DeadAfter = c.SuspectAfter / 2 }, "dead_after"},
		{"merkle buckets not a power of two", func(c *Config) { c.MerkleBuckets = 100 }, "merkle buckets"},
		{"zero merkle buckets", func(c *Config) { c.MerkleBuckets = 0 }, "merkle buckets"},
		{"smallest merkle tree", func(c *Config) { c.MerkleBuckets = 2 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("A")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
