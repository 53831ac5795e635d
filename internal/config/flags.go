package config

import (
	"flag"
	"os"

	"github.com/sqweebloid/seedbank/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-ledger string   path to the ledger database file
//	-blobs string    root directory of the local payload store
//	-bucket string   remote bucket name
//
// The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components (the CLI verbs parse their own flags).
// GlobalFlagNames lists every flag LoadConfig consumes, config file
// flags included, so front ends can strip them before reading verbs.
func GlobalFlagNames() []string {
	return []string{"-c", "-config", "-ledger", "-blobs", "-bucket"}
}

func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-ledger", "-blobs", "-bucket"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "path to the ledger database file")
	fs.StringVar(&cfg.BlobDir, "blobs", cfg.BlobDir, "root directory of the local payload store")
	fs.StringVar(&cfg.S3.Bucket, "bucket", cfg.S3.Bucket, "remote bucket name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
