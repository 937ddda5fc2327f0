package config

import (
	"flag"
	"os"
	"time"

	"sharefile/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-r string   storage root directory
//	-m int      max chunk size, bytes
//	-k int      default chunk size, bytes
//	-t int      session TTL, minutes
//	-l int      default link lifetime, minutes
//	-s string   download-token HMAC secret key
//	-w int      finalize worker count
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (empty disables offload)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and converted to
//     time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-r", "-m", "-k", "-t", "-l", "-s", "-w", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageRoot, "r", config.StorageRoot, "storage root directory")
	fs.Int64Var(&config.MaxChunkSize, "m", config.MaxChunkSize, "max chunk size (bytes)")
	fs.Int64Var(&config.DefaultChunkSize, "k", config.DefaultChunkSize, "default chunk size (bytes)")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session TTL (in minutes)")
	linkLifetime := fs.Int("l", int(config.DefaultLinkLifetime.Minutes()), "default link lifetime (in minutes)")

	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.IntVar(&config.FinalizeWorkers, "w", config.FinalizeWorkers, "finalize worker count")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.DefaultLinkLifetime = time.Duration(*linkLifetime) * time.Minute
}
