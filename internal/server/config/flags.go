package config

import (
	"flag"
	"os"
	"time"

	"github.com/passlink/passlink/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   session ticket HMAC secret key
//	-t int      magic-link token TTL, minutes
//	-w int      rate-limit window length, minutes
//	-g string   MaxMind city database path
//	-dev        deliver links to the caller instead of mailing
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then
//     converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-w", "-g", "-dev"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.GeoDBPath, "g", config.GeoDBPath, "MaxMind city database path")
	fs.BoolVar(&config.DevMode, "dev", config.DevMode, "return magic links to the caller")

	tokenTTL := fs.Int("t", int(config.TokenTTL.Minutes()), "token_ttl (in minutes)")
	window := fs.Int("w", int(config.RateLimitWindow.Minutes()), "rate_limit_window (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenTTL = time.Duration(*tokenTTL) * time.Minute
	config.RateLimitWindow = time.Duration(*window) * time.Minute
}
