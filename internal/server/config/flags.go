package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-d string   PostgreSQL DSN
//	-s string   secret signing key
//	-t int      access token lifetime, minutes
//	-r int      refresh token lifetime, minutes
//	-x int      password reset token lifetime, minutes
//	-w int      password change cooldown, days
//	-l string   log level
//	-seed       seed roles and users on start
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// parsers (-c/-config) do not collide. Parse errors panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-r", "-x", "-w", "-l", "-seed"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessMins := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token lifetime (in minutes)")
	refreshMins := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token lifetime (in minutes)")
	resetMins := fs.Int("x", int(config.ResetTokenValidityDuration.Minutes()), "password reset token lifetime (in minutes)")

	fs.IntVar(&config.PasswordChangeRequiredDays, "w", config.PasswordChangeRequiredDays, "password change cooldown (in days)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.SeedOnStart, "seed", config.SeedOnStart, "seed roles and users on start")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessMins) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshMins) * time.Minute
	config.ResetTokenValidityDuration = time.Duration(*resetMins) * time.Minute
}
