package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/dmitrop/storeflight/internal/logging"
)

const remoteName = "origin"

// GitStore is an ArtifactStore backed by a git repository. The repository
// is kept checked out in Dir; every CommitAndPush stages all pending
// changes.
type GitStore struct {
	dir    string
	url    string
	auth   *githttp.BasicAuth
	author object.Signature
	log    logging.Logger
}

// GitConfig configures a GitStore. Token is optional; when set it is used
// as an HTTP basic-auth credential for clone/pull/push.
type GitConfig struct {
	Dir         string
	URL         string
	Token       string
	AuthorName  string
	AuthorEmail string
}

func NewGitStore(cfg GitConfig, log logging.Logger) (*GitStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("store directory is required")
	}

	s := &GitStore{
		dir: cfg.Dir,
		url: cfg.URL,
		author: object.Signature{
			Name:  cfg.AuthorName,
			Email: cfg.AuthorEmail,
		},
		log: log,
	}
	if s.author.Name == "" {
		s.author.Name = "storeflight"
	}
	if cfg.Token != "" {
		// any non-empty username works for token auth
		s.auth = &githttp.BasicAuth{Username: "token", Password: cfg.Token}
	}
	return s, nil
}

// CloneOrPull clones the remote into the store directory on first use and
// pulls the latest revision afterwards. An empty remote is initialised
// locally so the first commit can populate it.
func (s *GitStore) CloneOrPull(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.dir, git.GitDirName)); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return s.clone(ctx)
	}
	return s.pull(ctx)
}

func (s *GitStore) clone(ctx context.Context) error {
	s.log.Info(ctx, "cloning artifact store", "url", s.url, "dir", s.dir)

	_, err := git.PlainCloneContext(ctx, s.dir, false, &git.CloneOptions{
		URL:  s.url,
		Auth: s.auth,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("clone %s: %w", s.url, err)
	}

	// empty remote: initialise locally and attach the remote
	repo, err := git.PlainInit(s.dir, false)
	if err != nil {
		return fmt.Errorf("init %s: %w", s.dir, err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{s.url},
	})
	if err != nil {
		return fmt.Errorf("add remote: %w", err)
	}
	return nil
}

func (s *GitStore) pull(ctx context.Context) error {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: remoteName, Auth: s.auth})
	switch {
	case err == nil:
	case errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// remote has no branch yet; nothing to pull
	default:
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

func (s *GitStore) FileExists(path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(path)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *GitStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(path)))
}

func (s *GitStore) WriteFile(path string, data []byte) error {
	full := filepath.Join(s.dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o600)
}

// CommitAndPush stages all pending changes and commits them. A clean
// worktree is a no-op. With push=true the commit is pushed to the remote.
func (s *GitStore) CommitAndPush(ctx context.Context, message string, push bool) error {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		s.log.Debug(ctx, "artifact store unchanged, nothing to commit")
		return nil
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}

	author := s.author
	author.When = time.Now()
	if _, err := wt.Commit(message, &git.CommitOptions{Author: &author}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Info(ctx, "committed artifact store changes", "message", message)

	if !push {
		return nil
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		Auth:       s.auth,
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/heads/*"},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// SetRemote replaces the origin remote URL.
func (s *GitStore) SetRemote(url string) error {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dir, err)
	}

	if err := repo.DeleteRemote(remoteName); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})
	if err != nil {
		return err
	}
	s.url = url
	return nil
}

var _ ArtifactStore = (*GitStore)(nil)
