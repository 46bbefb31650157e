// Package upload implements the chunked build upload engine: it asks the
// API for an upload plan, delivers every byte-range operation with bounded
// concurrency and per-chunk retry, notifies completion and polls until the
// server reports a terminal phase.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/common"
	"github.com/dmitrop/storeflight/internal/logging"
)

const (
	defaultConcurrency     = 4
	defaultChunkAttempts   = 3
	defaultRetryBaseDelay  = 2 * time.Second
	defaultPollInterval    = 30 * time.Second
	defaultMaxPollAttempts = 20
)

// ErrUploadTimedOut is returned when the upload status does not converge
// to a terminal phase within the allowed poll attempts.
var ErrUploadTimedOut = errors.New("upload processing timed out")

// FailedError carries the server-reported error list of a failed upload.
type FailedError struct {
	Errors []string
}

func (e *FailedError) Error() string {
	if len(e.Errors) == 0 {
		return "upload failed"
	}
	return "upload failed: " + strings.Join(e.Errors, "; ")
}

// ChunkError identifies the byte range whose delivery exhausted retries or
// hit a non-retryable response.
type ChunkError struct {
	Offset int64
	Length int64
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk at offset %d (length %d): %v", e.Offset, e.Length, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Config tunes the engine. Zero values select defaults.
type Config struct {
	// Concurrency bounds in-flight chunk uploads.
	Concurrency int
	// ChunkAttempts is the max delivery attempts per chunk.
	ChunkAttempts int
	// RetryBaseDelay is the initial backoff delay, doubling per attempt.
	RetryBaseDelay time.Duration
	// PollInterval is the sleep between status polls after completion.
	PollInterval time.Duration
	// MaxPollAttempts caps the status poll loop.
	MaxPollAttempts int
	// HTTPClient performs the chunk requests. Defaults to a client with a
	// generous per-chunk timeout.
	HTTPClient *http.Client
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Concurrency <= 0 {
		out.Concurrency = defaultConcurrency
	}
	if out.ChunkAttempts <= 0 {
		out.ChunkAttempts = defaultChunkAttempts
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = defaultRetryBaseDelay
	}
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.MaxPollAttempts <= 0 {
		out.MaxPollAttempts = defaultMaxPollAttempts
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return out
}

// Request describes one build upload.
type Request struct {
	AppID       string
	Version     string
	BuildNumber string
	Platform    asc.Platform
	FilePath    string
	AssetType   string
	UTI         string
}

// Result is a successful upload: the session id and any warnings the
// server attached on completion.
type Result struct {
	UploadID string
	Warnings []string
}

// Engine uploads a binary according to a server-dictated operation plan.
type Engine struct {
	svc   asc.UploadService
	cfg   Config
	log   logging.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(svc asc.UploadService, cfg Config, log logging.Logger) *Engine {
	return &Engine{
		svc:   svc,
		cfg:   cfg.withDefaults(),
		log:   log,
		sleep: sleepContext,
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

// Upload runs the full upload workflow for req. Chunk operations may
// complete in any order; each carries its own absolute byte range.
func (e *Engine) Upload(ctx context.Context, req Request) (*Result, error) {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrorInvalidFile, req.FilePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", common.ErrorInvalidFile, req.FilePath)
	}

	session := uuid.NewString()
	log := e.log.With("session", session, "file", req.FilePath)

	fd := asc.FileDescriptor{
		Name:      info.Name(),
		Size:      info.Size(),
		AssetType: req.AssetType,
		UTI:       req.UTI,
	}

	plan, err := e.svc.CreateBuildUpload(ctx, req.AppID, req.Version, req.BuildNumber, req.Platform, fd)
	if err != nil {
		return nil, fmt.Errorf("create build upload: %w", err)
	}

	// a plan that is already failed must not trigger any chunk traffic
	if plan.Status.Phase == asc.UploadPhaseFailed {
		return nil, &FailedError{Errors: plan.Status.Errors}
	}

	log.Info(ctx, "uploading build", "size", info.Size(), "operations", len(plan.Operations))

	if err := e.uploadOperations(ctx, req.FilePath, plan.Operations, log); err != nil {
		return nil, err
	}

	checksums, err := FileChecksums(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("compute checksums: %w", err)
	}

	if err := e.svc.MarkUploadComplete(ctx, plan.UploadFileID, checksums); err != nil {
		return nil, fmt.Errorf("mark upload complete: %w", err)
	}

	warnings, err := e.awaitCompletion(ctx, plan.UploadID, log)
	if err != nil {
		return nil, err
	}

	return &Result{UploadID: plan.UploadID, Warnings: warnings}, nil
}

// uploadOperations delivers every operation with a sliding-window bound on
// concurrency: at most Concurrency chunks are in flight, and each
// completion admits the next.
func (e *Engine) uploadOperations(ctx context.Context, path string, operations []asc.UploadOperation, log logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrorInvalidFile, path, err)
	}
	defer f.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, op := range operations {
		g.Go(func() error {
			if err := e.uploadChunk(gctx, f, op, log); err != nil {
				return &ChunkError{Offset: op.Offset, Length: op.Length, Err: err}
			}
			return nil
		})
	}

	return g.Wait()
}

// uploadChunk delivers one byte range, retrying transport errors and
// retryable statuses (429, 5xx) with exponential backoff. Any other HTTP
// failure is terminal for the chunk.
func (e *Engine) uploadChunk(ctx context.Context, f *os.File, op asc.UploadOperation, log logging.Logger) error {
	backoff := retry.WithMaxRetries(uint64(e.cfg.ChunkAttempts-1), retry.NewExponential(e.cfg.RetryBaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.sendChunk(ctx, f, op)
		if err == nil {
			return nil
		}

		var statusErr *chunkStatusError
		if errors.As(err, &statusErr) && !asc.IsRetryableStatus(statusErr.status) {
			return err
		}

		log.Warn(ctx, "chunk upload failed, retrying", "offset", op.Offset, "error", err)
		return retry.RetryableError(err)
	})
}

type chunkStatusError struct {
	status int
	body   string
}

func (e *chunkStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("unexpected status %d", e.status)
}

func (e *Engine) sendChunk(ctx context.Context, f *os.File, op asc.UploadOperation) error {
	// a fresh section reader per attempt; concurrent ReadAt calls on the
	// shared handle are safe
	body := io.NewSectionReader(f, op.Offset, op.Length)

	req, err := http.NewRequestWithContext(ctx, op.Method, op.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = op.Length
	for k, v := range op.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &chunkStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(detail))}
	}
	return nil
}

// awaitCompletion polls the upload status until a terminal phase. A
// non-terminal phase after the last attempt is a timeout failure.
func (e *Engine) awaitCompletion(ctx context.Context, uploadID string, log logging.Logger) ([]string, error) {
	for attempt := 0; attempt < e.cfg.MaxPollAttempts; attempt++ {
		status, err := e.svc.GetUploadStatus(ctx, uploadID)
		if err != nil {
			return nil, fmt.Errorf("get upload status: %w", err)
		}

		switch status.Phase {
		case asc.UploadPhaseComplete:
			for _, w := range status.Warnings {
				log.Warn(ctx, "upload completed with warning", "warning", w)
			}
			return status.Warnings, nil
		case asc.UploadPhaseFailed:
			return nil, &FailedError{Errors: status.Errors}
		}

		log.Debug(ctx, "upload still processing", "phase", status.Phase, "attempt", attempt+1)
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("upload %s: %w", uploadID, ErrUploadTimedOut)
}
