package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrop/storeflight/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-k string   App Store Connect API key id
//	-i string   App Store Connect API issuer id
//	-p string   path to the .p8 private key
//	-d string   local artifact store directory
//	-r string   artifact store remote URL
//	-t string   artifact store access token
//	-n int      max in-flight chunk uploads
//	-u int      upload poll interval in seconds
//	-w int      processing poll interval in seconds
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-k", "-i", "-p", "-d", "-r", "-t", "-n", "-u", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.KeyID, "k", cfg.KeyID, "App Store Connect API key id")
	fs.StringVar(&cfg.IssuerID, "i", cfg.IssuerID, "App Store Connect API issuer id")
	fs.StringVar(&cfg.PrivateKeyPath, "p", cfg.PrivateKeyPath, "path to the API private key (.p8)")
	fs.StringVar(&cfg.StoreDir, "d", cfg.StoreDir, "local artifact store directory")
	fs.StringVar(&cfg.StoreURL, "r", cfg.StoreURL, "artifact store remote URL")
	fs.StringVar(&cfg.StoreToken, "t", cfg.StoreToken, "artifact store access token")
	fs.IntVar(&cfg.UploadConcurrency, "n", cfg.UploadConcurrency, "max in-flight chunk uploads")
	uploadPoll := fs.Int("u", int(cfg.UploadPollInterval.Seconds()), "upload poll interval (in seconds)")
	processingPoll := fs.Int("w", int(cfg.ProcessingPollInterval.Seconds()), "processing poll interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.UploadPollInterval = time.Duration(*uploadPoll) * time.Second
	cfg.ProcessingPollInterval = time.Duration(*processingPoll) * time.Second
}
