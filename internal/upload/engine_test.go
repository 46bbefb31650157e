package upload

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/common"
	"github.com/dmitrop/storeflight/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ---- fake upload service ----

type fakeUploadService struct {
	mu sync.Mutex

	PlanRet *asc.UploadPlan
	PlanErr error

	MarkCompleteErr error

	// StatusSeq is returned in order; the last entry repeats.
	StatusSeq []asc.UploadStatus
	StatusErr error

	LastFD           asc.FileDescriptor
	MarkCompleteCall int
	LastChecksums    *asc.Checksums
	statusCalls      int
}

func (f *fakeUploadService) CreateBuildUpload(ctx context.Context, appID, version, buildNumber string, platform asc.Platform, fd asc.FileDescriptor) (*asc.UploadPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastFD = fd
	return f.PlanRet, f.PlanErr
}

func (f *fakeUploadService) MarkUploadComplete(ctx context.Context, uploadFileID string, checksums *asc.Checksums) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MarkCompleteCall++
	f.LastChecksums = checksums
	return f.MarkCompleteErr
}

func (f *fakeUploadService) GetUploadStatus(ctx context.Context, uploadID string) (*asc.UploadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.StatusSeq) {
		i = len(f.StatusSeq) - 1
	}
	s := f.StatusSeq[i]
	return &s, nil
}

// ---- helpers ----

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "App.ipa")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

// chunkRecorder collects chunk bodies by offset.
type chunkRecorder struct {
	mu     sync.Mutex
	bodies map[int64][]byte
	calls  map[int64]int
}

func newChunkRecorder() *chunkRecorder {
	return &chunkRecorder{bodies: make(map[int64][]byte), calls: make(map[int64]int)}
}

func (r *chunkRecorder) handler(t *testing.T, failuresPerOffset map[int64]int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var offset int64
		_, err := fmt.Sscanf(req.URL.Path, "/chunk/%d", &offset)
		assert.NoError(t, err)

		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)

		r.mu.Lock()
		r.calls[offset]++
		call := r.calls[offset]
		r.mu.Unlock()

		if call <= failuresPerOffset[offset] {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		r.mu.Lock()
		r.bodies[offset] = body
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *chunkRecorder) reassemble() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	offsets := make([]int64, 0, len(r.bodies))
	for o := range r.bodies {
		offsets = append(offsets, o)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var out []byte
	for _, o := range offsets {
		out = append(out, r.bodies[o]...)
	}
	return out
}

func operationsFor(srvURL string, fileSize, chunkSize int64) []asc.UploadOperation {
	var ops []asc.UploadOperation
	for offset := int64(0); offset < fileSize; offset += chunkSize {
		length := chunkSize
		if offset+length > fileSize {
			length = fileSize - offset
		}
		ops = append(ops, asc.UploadOperation{
			Method:  http.MethodPut,
			URL:     fmt.Sprintf("%s/chunk/%d", srvURL, offset),
			Length:  length,
			Offset:  offset,
			Headers: map[string]string{"X-Upload-Part": fmt.Sprint(offset / chunkSize)},
		})
	}
	return ops
}

func fastConfig() Config {
	return Config{
		Concurrency:     4,
		ChunkAttempts:   3,
		RetryBaseDelay:  time.Millisecond,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
	}
}

// ---- tests ----

func TestUpload_ReassemblesExactly(t *testing.T) {
	path, data := writeTempFile(t, 10_000)

	rec := newChunkRecorder()
	srv := httptest.NewServer(rec.handler(t, nil))
	t.Cleanup(srv.Close)

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID:     "up-1",
			UploadFileID: "file-1",
			Operations:   operationsFor(srv.URL, 10_000, 3_000),
			Status:       asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
		},
		StatusSeq: []asc.UploadStatus{{Phase: asc.UploadPhaseComplete}},
	}

	engine := NewEngine(svc, fastConfig(), testLogger())
	result, err := engine.Upload(context.Background(), Request{
		AppID: "app-1", Version: "1.0", BuildNumber: "7",
		Platform: asc.PlatformIOS, FilePath: path, AssetType: "IPA", UTI: "com.apple.ipa",
	})
	require.NoError(t, err)
	assert.Equal(t, "up-1", result.UploadID)

	// bodies concatenated by offset must equal the file, each byte sent once
	assert.Equal(t, data, rec.reassemble())
	for offset, n := range rec.calls {
		assert.Equal(t, 1, n, "offset %d uploaded more than once", offset)
	}

	assert.Equal(t, 1, svc.MarkCompleteCall)
	require.NotNil(t, svc.LastChecksums)
	checksums, err := FileChecksums(path)
	require.NoError(t, err)
	assert.Equal(t, checksums.SHA256, svc.LastChecksums.SHA256)
	assert.Equal(t, int64(10_000), svc.LastFD.Size)
}

func TestUpload_TransientChunkFailuresRecover(t *testing.T) {
	path, data := writeTempFile(t, 6_000)

	rec := newChunkRecorder()
	// the chunk at offset 2000 fails twice, then succeeds on attempt 3
	srv := httptest.NewServer(rec.handler(t, map[int64]int{2_000: 2}))
	t.Cleanup(srv.Close)

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID: "up-1", UploadFileID: "file-1",
			Operations: operationsFor(srv.URL, 6_000, 2_000),
			Status:     asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
		},
		StatusSeq: []asc.UploadStatus{{Phase: asc.UploadPhaseComplete}},
	}

	engine := NewEngine(svc, fastConfig(), testLogger())
	_, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})
	require.NoError(t, err)

	assert.Equal(t, data, rec.reassemble())
	assert.Equal(t, 3, rec.calls[2_000])
}

func TestUpload_ExhaustedRetriesIdentifyChunk(t *testing.T) {
	path, _ := writeTempFile(t, 6_000)

	rec := newChunkRecorder()
	// fails more times than ChunkAttempts allows
	srv := httptest.NewServer(rec.handler(t, map[int64]int{4_000: 10}))
	t.Cleanup(srv.Close)

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID: "up-1", UploadFileID: "file-1",
			Operations: operationsFor(srv.URL, 6_000, 2_000),
			Status:     asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
		},
	}

	engine := NewEngine(svc, fastConfig(), testLogger())
	_, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})
	require.Error(t, err)

	var chunkErr *ChunkError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, int64(4_000), chunkErr.Offset)
	assert.Equal(t, 3, rec.calls[4_000])
	assert.Equal(t, 0, svc.MarkCompleteCall)
}

func TestUpload_NonRetryableStatusFailsImmediately(t *testing.T) {
	path, _ := writeTempFile(t, 1_000)

	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID: "up-1", UploadFileID: "file-1",
			Operations: operationsFor(srv.URL, 1_000, 1_000),
			Status:     asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
		},
	}

	engine := NewEngine(svc, fastConfig(), testLogger())
	_, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestUpload_FailedPlanIssuesNoChunkCalls(t *testing.T) {
	path, _ := writeTempFile(t, 1_000)

	var chunkCalls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		chunkCalls++
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID: "up-1", UploadFileID: "file-1",
			Operations: operationsFor(srv.URL, 1_000, 1_000),
			Status:     asc.UploadStatus{Phase: asc.UploadPhaseFailed, Errors: []string{"duplicate build number"}},
		},
	}

	engine := NewEngine(svc, fastConfig(), testLogger())
	_, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})
	require.Error(t, err)

	var failedErr *FailedError
	require.True(t, errors.As(err, &failedErr))
	assert.Equal(t, []string{"duplicate build number"}, failedErr.Errors)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, chunkCalls)
	assert.Equal(t, 0, svc.MarkCompleteCall)
}

func TestUpload_BoundedConcurrency(t *testing.T) {
	path, _ := writeTempFile(t, 16_000)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	cfg := fastConfig()
	cfg.Concurrency = 2

	svc := &fakeUploadService{
		PlanRet: &asc.UploadPlan{
			UploadID: "up-1", UploadFileID: "file-1",
			Operations: operationsFor(srv.URL, 16_000, 1_000), // 16 chunks
			Status:     asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
		},
		StatusSeq: []asc.UploadStatus{{Phase: asc.UploadPhaseComplete}},
	}

	engine := NewEngine(svc, cfg, testLogger())
	_, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, 2)
}

func TestUpload_MissingFile(t *testing.T) {
	svc := &fakeUploadService{}
	engine := NewEngine(svc, fastConfig(), testLogger())

	_, err := engine.Upload(context.Background(), Request{FilePath: filepath.Join(t.TempDir(), "nope.ipa")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrorInvalidFile))
}

func TestUpload_StatusPollOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		statusSeq []asc.UploadStatus
		wantErr   error
		warnings  []string
	}{
		{
			name: "processing then complete with warnings",
			statusSeq: []asc.UploadStatus{
				{Phase: asc.UploadPhaseProcessing},
				{Phase: asc.UploadPhaseComplete, Warnings: []string{"icon missing"}},
			},
			warnings: []string{"icon missing"},
		},
		{
			name: "processing then failed",
			statusSeq: []asc.UploadStatus{
				{Phase: asc.UploadPhaseProcessing},
				{Phase: asc.UploadPhaseFailed, Errors: []string{"bad binary"}},
			},
			wantErr: &FailedError{},
		},
		{
			name:      "never converges",
			statusSeq: []asc.UploadStatus{{Phase: asc.UploadPhaseProcessing}},
			wantErr:   ErrUploadTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _ := writeTempFile(t, 100)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			t.Cleanup(srv.Close)

			svc := &fakeUploadService{
				PlanRet: &asc.UploadPlan{
					UploadID: "up-1", UploadFileID: "file-1",
					Operations: operationsFor(srv.URL, 100, 100),
					Status:     asc.UploadStatus{Phase: asc.UploadPhaseAwaitingUpload},
				},
				StatusSeq: tt.statusSeq,
			}

			engine := NewEngine(svc, fastConfig(), testLogger())
			result, err := engine.Upload(context.Background(), Request{FilePath: path, Platform: asc.PlatformIOS})

			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.warnings, result.Warnings)
			case *FailedError:
				var failedErr *FailedError
				require.True(t, errors.As(err, &failedErr))
				_ = want
			default:
				require.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}
