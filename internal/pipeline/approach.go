// Package pipeline orchestrates the full delivery workflow: upload the
// binary, wait for processing, then apply the TestFlight distribution
// steps (changelog, beta groups, review submission).
package pipeline

import (
	"context"
	"fmt"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/logging"
	"github.com/dmitrop/storeflight/internal/upload"
)

// Uploader delivers a binary and reports the upload session outcome.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

// ProcessingWaiter blocks until a build finishes server-side processing.
type ProcessingWaiter interface {
	Wait(ctx context.Context, appID, version, buildNumber string) (string, *asc.ProcessingResult, error)
}

// Request describes one approach run.
type Request struct {
	BundleID    string
	Version     string
	BuildNumber string
	Platform    asc.Platform
	FilePath    string
	AssetType   string
	UTI         string

	Changelog       string
	BetaGroups      []string
	SubmitForReview bool

	// IgnoreUploadFailure continues to the processing wait even when the
	// upload step fails, for the case where the build was already
	// delivered by an earlier interrupted run.
	IgnoreUploadFailure bool
}

// Approach runs the delivery workflow end to end.
type Approach struct {
	uploader Uploader
	waiter   ProcessingWaiter
	release  asc.ReleaseService
	log      logging.Logger
}

func NewApproach(uploader Uploader, waiter ProcessingWaiter, release asc.ReleaseService, log logging.Logger) *Approach {
	return &Approach{uploader: uploader, waiter: waiter, release: release, log: log}
}

// Run uploads the binary, waits for the build to become valid and applies
// the distribution steps. Steps whose inputs are empty are skipped.
func (a *Approach) Run(ctx context.Context, req Request) error {
	appID, err := a.release.GetAppID(ctx, req.BundleID)
	if err != nil {
		return fmt.Errorf("resolve app for %s: %w", req.BundleID, err)
	}
	if appID == "" {
		return fmt.Errorf("no app found for bundle id %s: %w", req.BundleID, asc.ErrNotFound)
	}

	_, err = a.uploader.Upload(ctx, upload.Request{
		AppID:       appID,
		Version:     req.Version,
		BuildNumber: req.BuildNumber,
		Platform:    req.Platform,
		FilePath:    req.FilePath,
		AssetType:   req.AssetType,
		UTI:         req.UTI,
	})
	if err != nil {
		if !req.IgnoreUploadFailure {
			return err
		}
		a.log.Warn(ctx, "upload failed, continuing to processing wait", "error", err)
	}

	buildID, result, err := a.waiter.Wait(ctx, appID, req.Version, req.BuildNumber)
	if err != nil {
		return err
	}

	if req.Changelog != "" {
		if err := a.release.SetChangelog(ctx, buildID, req.Changelog, result.BuildLocalizationIDs); err != nil {
			return fmt.Errorf("set changelog: %w", err)
		}
	}

	if len(req.BetaGroups) > 0 {
		if err := a.release.SetBetaGroups(ctx, appID, buildID, req.BetaGroups); err != nil {
			return fmt.Errorf("assign beta groups: %w", err)
		}
	}

	if req.SubmitForReview {
		if err := a.release.SendToReview(ctx, buildID); err != nil {
			return fmt.Errorf("submit for review: %w", err)
		}
	}

	a.log.Info(ctx, "approach complete", "buildId", buildID, "version", req.Version, "build", req.BuildNumber)
	return nil
}
