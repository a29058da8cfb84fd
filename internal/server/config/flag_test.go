package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-g", "HS512",
				"-t", "1h", "-v", "30m", "-m", "mq", "-w", "pre_register,update_email",
				"-c", "ignored.json",
			},
			expected: &Config{
				EndpointAddr:                "127.0.0.1:9090",
				DatabaseDSN:                 "db",
				SecretKey:                   "secret",
				SigningAlgorithm:            "HS512",
				AccessTokenValidityDuration: time.Hour,
				ActionTokenValidityDuration: 30 * time.Minute,
				BrokerHost:                  "mq",
				WatchedQueues:               []string{"pre_register", "update_email"},
			},
		},
		{
			name:     "no flags keeps zero config",
			args:     []string{},
			expected: &Config{},
		},
		{
			name:      "bad duration",
			args:      []string{"-t", "forever"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := parseFlags(config, tt.args)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
