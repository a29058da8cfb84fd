package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/accounts/internal/flagx"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// parseEnv overlays the variables the deployment manifests export:
//
//	RABBITMQ_USER, RABBITMQ_PASSWORD, RABBITMQ_HOST, RABBITMQ_PORT
//	JWT_SECRET_KEY, JWT_ALGORITHM, SALT
//	DATABASE_DSN, or POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_HOST/POSTGRES_PORT/POSTGRES_DB
//	ADDRESS, WATCHED_ACTIONS (comma separated)
//
// <queue>_base_URL values are read separately by parseBaseURLs.
func parseEnv(config *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	str("ADDRESS", &config.EndpointAddr)
	str("RABBITMQ_USER", &config.BrokerUser)
	str("RABBITMQ_PASSWORD", &config.BrokerPassword)
	str("RABBITMQ_HOST", &config.BrokerHost)
	str("JWT_SECRET_KEY", &config.SecretKey)
	str("JWT_ALGORITHM", &config.SigningAlgorithm)
	str("SALT", &config.PasswordSalt)

	if v, ok := lookup("RABBITMQ_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RABBITMQ_PORT: %w", err)
		}
		config.BrokerPort = port
	}

	if v, ok := lookup("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	} else if host, ok := lookup("POSTGRES_HOST"); ok {
		config.DatabaseDSN = postgresDSN(lookup, host)
	}

	if v, ok := lookup("WATCHED_ACTIONS"); ok {
		config.WatchedQueues = flagx.SplitList(v)
	}

	return nil
}

// parseBaseURLs reads <queue>_base_URL for every watched queue. It runs after
// the flag layer so queues chosen with -w are covered.
func parseBaseURLs(config *Config, lookup lookupFunc) {
	for _, queue := range config.WatchedQueues {
		if v, ok := lookup(queue + "_base_URL"); ok {
			if config.BaseURLs == nil {
				config.BaseURLs = make(map[string]string)
			}
			config.BaseURLs[queue] = v
		}
	}
}

func postgresDSN(lookup lookupFunc, host string) string {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok {
			return v
		}
		return def
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(get("POSTGRES_USER", "postgres"), get("POSTGRES_PASSWORD", "")),
		Host:     net.JoinHostPort(host, get("POSTGRES_PORT", "5432")),
		Path:     "/" + get("POSTGRES_DB", "accounts"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
