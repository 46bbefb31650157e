package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrop/storeflight/internal/cli"
	"github.com/dmitrop/storeflight/internal/config"
	"github.com/dmitrop/storeflight/internal/flagx"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// strip config and wiring flags, the remainder is the command line
	args := flagx.CommandArgs(os.Args[1:])
	if err := app.Run(ctx, args); err != nil {
		log.Fatalf("%v", err)
	}
}
