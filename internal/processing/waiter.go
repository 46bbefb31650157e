// Package processing waits for an uploaded build to appear in App Store
// Connect and for its server-side processing to converge to a terminal
// state. Polling runs in two phases: appearance (the build becomes
// queryable) and convergence (the processing state leaves PROCESSING).
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/logging"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultMaxAttempts  = 60
)

// ErrProcessingTimedOut is returned when either phase runs out of attempts
// without reaching a terminal outcome.
var ErrProcessingTimedOut = errors.New("build processing timed out")

// FailureKind classifies a terminal processing failure.
type FailureKind string

const (
	// FailureGeneric is an unspecified server-side processing failure.
	FailureGeneric FailureKind = "failed"
	// FailureInvalidBinary means the uploaded binary is malformed.
	FailureInvalidBinary FailureKind = "invalid_binary"
	// FailureMissingExportCompliance means export compliance answers are
	// required before the build can be distributed.
	FailureMissingExportCompliance FailureKind = "missing_export_compliance"
	// FailureRejected means the build was rejected from beta review.
	FailureRejected FailureKind = "rejected"
)

// FailureError is a terminal processing failure with an actionable message.
type FailureError struct {
	Kind    FailureKind
	BuildID string
	State   asc.ProcessingState
}

func (e *FailureError) Error() string {
	switch e.Kind {
	case FailureInvalidBinary:
		return fmt.Sprintf("build %s is invalid: the binary is malformed, check required Info.plist keys (CFBundleVersion, CFBundleShortVersionString) and code signing", e.BuildID)
	case FailureMissingExportCompliance:
		return fmt.Sprintf("build %s requires export compliance information: answer the encryption questions in App Store Connect or set ITSAppUsesNonExemptEncryption in Info.plist", e.BuildID)
	case FailureRejected:
		return fmt.Sprintf("build %s was rejected from beta review", e.BuildID)
	}
	return fmt.Sprintf("build %s failed processing (state %s)", e.BuildID, e.State)
}

// State names a waiter phase, mostly for logging and tests.
type State string

const (
	StateNotStarted         State = "not_started"
	StateAwaitingAppearance State = "awaiting_appearance"
	StateAwaitingProcessing State = "awaiting_processing"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
)

// Config tunes the waiter. Zero values select defaults.
type Config struct {
	// PollInterval is the sleep between polls in both phases.
	PollInterval time.Duration
	// MaxAppearanceAttempts caps phase A polls.
	MaxAppearanceAttempts int
	// MaxProcessingAttempts caps phase B polls.
	MaxProcessingAttempts int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.MaxAppearanceAttempts <= 0 {
		out.MaxAppearanceAttempts = defaultMaxAttempts
	}
	if out.MaxProcessingAttempts <= 0 {
		out.MaxProcessingAttempts = defaultMaxAttempts
	}
	return out
}

// Waiter polls build state until success or a terminal failure.
type Waiter struct {
	svc   asc.BuildService
	cfg   Config
	log   logging.Logger
	sleep func(ctx context.Context, d time.Duration) error

	state State
}

func NewWaiter(svc asc.BuildService, cfg Config, log logging.Logger) *Waiter {
	return &Waiter{
		svc:   svc,
		cfg:   cfg.withDefaults(),
		log:   log,
		sleep: sleepContext,
		state: StateNotStarted,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State reports the waiter's current phase.
func (w *Waiter) State() State { return w.state }

// Wait resolves the build id for (appID, version, buildNumber) and then
// polls its processing state until terminal. Re-entry always re-resolves
// the build id, even when a build already exists server-side.
func (w *Waiter) Wait(ctx context.Context, appID, version, buildNumber string) (string, *asc.ProcessingResult, error) {
	buildID, err := w.awaitAppearance(ctx, appID, version, buildNumber)
	if err != nil {
		w.state = StateFailed
		return "", nil, err
	}

	result, err := w.awaitConvergence(ctx, buildID)
	if err != nil {
		w.state = StateFailed
		return buildID, nil, err
	}

	w.state = StateSucceeded
	return buildID, result, nil
}

func (w *Waiter) awaitAppearance(ctx context.Context, appID, version, buildNumber string) (string, error) {
	w.state = StateAwaitingAppearance
	log := w.log.With("version", version, "build", buildNumber)

	for attempt := 0; attempt < w.cfg.MaxAppearanceAttempts; attempt++ {
		buildID, err := w.svc.FindBuildID(ctx, appID, version, buildNumber)
		if err != nil {
			return "", fmt.Errorf("find build: %w", err)
		}
		if buildID != "" {
			log.Info(ctx, "build appeared", "buildId", buildID)
			return buildID, nil
		}

		log.Debug(ctx, "build not visible yet", "attempt", attempt+1)
		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("build %s (%s) did not appear: %w", buildNumber, version, ErrProcessingTimedOut)
}

func (w *Waiter) awaitConvergence(ctx context.Context, buildID string) (*asc.ProcessingResult, error) {
	w.state = StateAwaitingProcessing
	log := w.log.With("buildId", buildID)

	for attempt := 0; attempt < w.cfg.MaxProcessingAttempts; attempt++ {
		result, err := w.svc.GetProcessingResult(ctx, buildID)
		if err != nil {
			return nil, fmt.Errorf("get processing result: %w", err)
		}

		switch result.State {
		case asc.ProcessingStateValid:
			log.Info(ctx, "build processed", "bundleId", result.BuildBundleID)
			return result, nil
		case asc.ProcessingStateProcessing:
			log.Debug(ctx, "build still processing", "attempt", attempt+1)
		default:
			return nil, &FailureError{Kind: failureKind(result.State), BuildID: buildID, State: result.State}
		}

		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("build %s: %w", buildID, ErrProcessingTimedOut)
}

func failureKind(state asc.ProcessingState) FailureKind {
	switch state {
	case asc.ProcessingStateInvalid:
		return FailureInvalidBinary
	case asc.ProcessingStateMissingExportCompliance:
		return FailureMissingExportCompliance
	case asc.ProcessingStateRejected:
		return FailureRejected
	}
	return FailureGeneric
}
