package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/accounts/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8000")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-g string     JWT signing algorithm (HS256, HS384, HS512)
//	-t duration   access token validity (e.g., "720h")
//	-v duration   action token validity (e.g., "24h")
//	-m string     broker host
//	-w string     watched queues, comma separated
//
// Only the flags above are picked out of args, so -c/-config and flags of
// other components do not collide.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-g", "-t", "-v", "-m", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SigningAlgorithm, "g", config.SigningAlgorithm, "signing algorithm")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.ActionTokenValidityDuration, "v", config.ActionTokenValidityDuration, "action token validity")
	fs.StringVar(&config.BrokerHost, "m", config.BrokerHost, "broker host")
	watched := fs.String("w", "", "watched queues, comma separated")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *watched != "" {
		config.WatchedQueues = flagx.SplitList(*watched)
	}
	return nil
}
