// Package store persists provisioning artifacts (encrypted certificates,
// profiles) in a versioned key-path blob store.
package store

import "context"

// ArtifactStore is versioned blob storage addressed by relative slash-
// separated paths.
//
// Contract:
//   - CloneOrPull brings the local copy to the latest remote revision and
//     must be called before reads that need fresh state.
//   - WriteFile stages content locally; CommitAndPush records it (and
//     pushes when push is true).
//   - A single writer is assumed: no conflict detection happens on
//     concurrent commits, and push failures surface verbatim.
type ArtifactStore interface {
	CloneOrPull(ctx context.Context) error
	FileExists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	CommitAndPush(ctx context.Context, message string, push bool) error
	SetRemote(url string) error
}
