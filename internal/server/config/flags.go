package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-k string   upstream credential key (64 hex chars or passphrase)
//	-m string   local email domain for short login names
//	-z int      upstream session cache TTL, minutes
//	-r string   Redis address for the shared upstream session cache
//	-u string   S3 root user
//	-p string   S3 root password
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log format: json or text
//
// Duration flags are integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-k", "-m", "-z", "-r", "-u", "-p", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session token secret key")
	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "session token validity (in minutes)")
	fs.StringVar(&config.CredentialKey, "k", config.CredentialKey, "upstream credential key")
	fs.StringVar(&config.LocalEmailDomain, "m", config.LocalEmailDomain, "local email domain")
	sessionTTL := fs.Int("z", int(config.UpstreamSessionTTL.Minutes()), "upstream session cache ttl (in minutes)")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for shared upstream session cache")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format (json|text)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	config.UpstreamSessionTTL = time.Duration(*sessionTTL) * time.Minute
}
