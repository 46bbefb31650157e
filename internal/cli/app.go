// Package cli wires configuration, the API client, the artifact store and
// the workflow components together and dispatches subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/config"
	"github.com/dmitrop/storeflight/internal/logging"
	"github.com/dmitrop/storeflight/internal/pipeline"
	"github.com/dmitrop/storeflight/internal/processing"
	"github.com/dmitrop/storeflight/internal/provision"
	"github.com/dmitrop/storeflight/internal/store"
	"github.com/dmitrop/storeflight/internal/upload"
)

// App holds the wired workflow components and dispatches subcommands.
type App struct {
	cfg *config.Config
	log logging.Logger
	out io.Writer

	approach *pipeline.Approach
	syncer   *provision.Syncer
	devices  asc.DeviceService
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	tokens, err := asc.NewJWTProviderFromFile(cfg.KeyID, cfg.IssuerID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}
	client := asc.NewClient(cfg.APIBaseURL, tokens, log)

	st, err := store.NewGitStore(store.GitConfig{
		Dir:         cfg.StoreDir,
		URL:         cfg.StoreURL,
		Token:       cfg.StoreToken,
		AuthorName:  cfg.StoreAuthorName,
		AuthorEmail: cfg.StoreAuthorEmail,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	engine := upload.NewEngine(client, upload.Config{
		Concurrency:  cfg.UploadConcurrency,
		PollInterval: cfg.UploadPollInterval,
	}, log)

	waiter := processing.NewWaiter(client, processing.Config{
		PollInterval: cfg.ProcessingPollInterval,
	}, log)

	certs := provision.NewCertificateManager(client, st, log)
	profiles := provision.NewProfileSyncer(client, client, client, st, log)

	return &App{
		cfg:      cfg,
		log:      log,
		out:      os.Stdout,
		approach: pipeline.NewApproach(engine, waiter, client, log),
		syncer:   provision.NewSyncer(certs, profiles, log),
		devices:  client,
	}, nil
}

// Run dispatches args to a subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "approach":
		return a.runApproach(ctx, args[1:])
	case "provision":
		return a.runProvision(ctx, args[1:])
	case "devices":
		return a.runDevices(ctx, args[1:])
	case "help":
		a.usage()
		return nil
	}

	a.usage()
	return fmt.Errorf("unknown command: %s", args[0])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: storeflight <command> [flags]")
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  approach    upload a build and distribute it to TestFlight")
	fmt.Fprintln(a.out, "  provision   sync certificates and provisioning profiles")
	fmt.Fprintln(a.out, "  devices     list or register test devices")
}
