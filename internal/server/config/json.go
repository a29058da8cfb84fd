package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/accounts/internal/flagx"
	"github.com/dmitrijs2005/accounts/internal/timex"
)

// JSONConfig is the on-disk shape of the configuration file. Absent fields
// leave the current value untouched.
type JSONConfig struct {
	EndpointAddr                *string           `json:"endpoint_addr"`
	DatabaseDSN                 *string           `json:"database_dsn"`
	SecretKey                   *string           `json:"secret_key"`
	SigningAlgorithm            *string           `json:"signing_algorithm"`
	AccessTokenValidityDuration *timex.Duration   `json:"access_token_validity_duration"`
	ActionTokenValidityDuration *timex.Duration   `json:"action_token_validity_duration"`
	PasswordSalt                *string           `json:"password_salt"`
	BrokerUser                  *string           `json:"broker_user"`
	BrokerPassword              *string           `json:"broker_password"`
	BrokerHost                  *string           `json:"broker_host"`
	BrokerPort                  *int              `json:"broker_port"`
	BrokerHeartbeat             *timex.Duration   `json:"broker_heartbeat"`
	ConnectAttempts             *int              `json:"connect_attempts"`
	ConnectBackoff              *timex.Duration   `json:"connect_backoff"`
	ReconnectDelay              *timex.Duration   `json:"reconnect_delay"`
	WatchedQueues               []string          `json:"watched_queues"`
	BaseURLs                    map[string]string `json:"base_urls"`
	DeadLetterExchange          *string           `json:"dead_letter_exchange"`
}

// parseJSON overlays the file named by -c/-config, if any.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SigningAlgorithm, c.SigningAlgorithm)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.ActionTokenValidityDuration, c.ActionTokenValidityDuration)
	setString(&config.PasswordSalt, c.PasswordSalt)
	setString(&config.BrokerUser, c.BrokerUser)
	setString(&config.BrokerPassword, c.BrokerPassword)
	setString(&config.BrokerHost, c.BrokerHost)
	setInt(&config.BrokerPort, c.BrokerPort)
	setDuration(&config.BrokerHeartbeat, c.BrokerHeartbeat)
	setInt(&config.ConnectAttempts, c.ConnectAttempts)
	setDuration(&config.ConnectBackoff, c.ConnectBackoff)
	setDuration(&config.ReconnectDelay, c.ReconnectDelay)
	setString(&config.DeadLetterExchange, c.DeadLetterExchange)

	if c.WatchedQueues != nil {
		config.WatchedQueues = c.WatchedQueues
	}
	if len(c.BaseURLs) > 0 && config.BaseURLs == nil {
		config.BaseURLs = make(map[string]string, len(c.BaseURLs))
	}
	for queue, base := range c.BaseURLs {
		config.BaseURLs[queue] = base
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
