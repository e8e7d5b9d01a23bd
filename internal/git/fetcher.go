package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/logfields"
)

// Checkout is the materialized source tree handed to the configure stage.
type Checkout struct {
	Root     string // working-tree root
	Revision string // resolved commit SHA
	RefName  string // full ref name the revision came from
	Clean    bool   // worktree had no local modifications
	Reused   bool   // an existing compatible checkout was reused
}

// Fetcher obtains a working copy of the upstream project at a release
// reference. It is safe to call Fetch repeatedly against the same
// destination: an existing compatible checkout is verified and reused.
type Fetcher struct {
	url string
	dir string
}

// NewFetcher creates a fetcher for the upstream repository at url,
// materializing checkouts into dir.
func NewFetcher(url, dir string) *Fetcher {
	return &Fetcher{url: url, dir: dir}
}

// Fetch resolves reference against the remote and produces a checkout at
// that revision. A failed fresh clone rolls the destination back to empty;
// an existing checkout is never deleted.
func (f *Fetcher) Fetch(ctx context.Context, reference string) (*Checkout, error) {
	if err := ValidateReference(reference); err != nil {
		return nil, errors.FetchError(errors.CodeInvalidReference, "invalid release reference").
			WithCause(err).
			WithContext("reference", reference).
			Build()
	}

	refs, err := f.listRemote(ctx)
	if err != nil {
		return nil, errors.FetchError(errors.CodeNetworkUnreachable, "failed to list upstream references").
			WithCause(err).
			WithContext("url", f.url).
			Retryable().
			Build()
	}

	resolved, err := pickReference(refs, reference)
	if err != nil {
		return nil, errors.FetchError(errors.CodeInvalidReference, "release reference does not resolve").
			WithCause(err).
			WithContext("reference", reference).
			WithContext("url", f.url).
			Build()
	}

	slog.Info("Resolved release reference",
		logfields.Reference(reference),
		logfields.Revision(resolved.Hash),
		slog.String("ref", resolved.RefName),
	)

	if _, statErr := os.Stat(filepath.Join(f.dir, ".git")); statErr == nil {
		return f.reuse(ctx, resolved)
	}
	return f.clone(ctx, resolved)
}

// listRemote lists the advertised refs of the upstream without cloning,
// using an in-memory remote.
func (f *Fetcher) listRemote(ctx context.Context) ([]RemoteReference, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{f.url},
	})
	advertised, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, err
	}

	refs := make([]RemoteReference, 0, len(advertised))
	for _, ref := range advertised {
		if ref.Type() == plumbing.SymbolicReference {
			continue
		}
		name := ref.Name().String()
		if !ref.Name().IsBranch() && !ref.Name().IsTag() {
			continue
		}
		refs = append(refs, RemoteReference{
			Name:    ref.Name().Short(),
			RefName: name,
			Hash:    ref.Hash().String(),
		})
	}
	return refs, nil
}

// clone performs a fresh clone at the resolved reference. On failure the
// destination is removed so a retry starts from an empty directory rather
// than a corrupt partial clone.
func (f *Fetcher) clone(ctx context.Context, resolved RemoteReference) (*Checkout, error) {
	slog.Info("Cloning upstream source", logfields.URL(f.url), logfields.Path(f.dir))

	repo, err := gogit.PlainCloneContext(ctx, f.dir, false, &gogit.CloneOptions{
		URL:           f.url,
		ReferenceName: plumbing.ReferenceName(resolved.RefName),
		SingleBranch:  true,
		Progress:      os.Stdout,
	})
	if err != nil {
		// Roll back to an empty destination; a corrupt partial clone
		// would poison every subsequent attempt.
		if rmErr := os.RemoveAll(f.dir); rmErr != nil {
			slog.Warn("Failed to remove partial clone", logfields.Path(f.dir), logfields.Error(rmErr))
		}
		return nil, errors.FetchError(errors.CodeNetworkUnreachable, "clone failed").
			WithCause(err).
			WithContext("url", f.url).
			WithContext("path", f.dir).
			Retryable().
			Build()
	}

	// Annotated tags advertise the tag object; HEAD holds the commit the
	// checkout actually sits on.
	revision := resolved.Hash
	if head, headErr := repo.Head(); headErr == nil {
		revision = head.Hash().String()
	}

	return &Checkout{
		Root:     f.dir,
		Revision: revision,
		RefName:  resolved.RefName,
		Clean:    true,
	}, nil
}

// reuse verifies an existing checkout points at the same upstream and has a
// clean worktree, then moves it to the resolved revision if needed.
func (f *Fetcher) reuse(ctx context.Context, resolved RemoteReference) (*Checkout, error) {
	repo, err := gogit.PlainOpen(f.dir)
	if err != nil {
		return nil, errors.FetchError(errors.CodeDirtyWorkingTree, "destination holds an unreadable repository").
			WithCause(err).
			WithContext("path", f.dir).
			UserAction().
			Build()
	}

	if err := f.verifyOrigin(repo); err != nil {
		return nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFetch, "failed to open worktree").Build()
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFetch, "failed to read worktree status").Build()
	}
	if !status.IsClean() {
		return nil, errors.FetchError(errors.CodeDirtyWorkingTree, "existing checkout has local modifications").
			WithContext("path", f.dir).
			UserAction().
			Build()
	}

	head, err := repo.Head()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFetch, "failed to read HEAD").Build()
	}

	// The advertised hash of an annotated tag is the tag object; HEAD is a
	// commit. Compare against the peeled commit so an up-to-date checkout
	// is reused without a redundant fetch.
	if head.Hash() != peelToCommit(repo, plumbing.NewHash(resolved.Hash)) {
		if err := f.updateTo(ctx, repo, worktree, resolved); err != nil {
			return nil, err
		}
		if head, err = repo.Head(); err != nil {
			return nil, errors.WrapError(err, errors.CategoryFetch, "failed to read HEAD").Build()
		}
	} else {
		slog.Info("Reusing existing checkout", logfields.Path(f.dir), logfields.Revision(head.Hash().String()))
	}

	return &Checkout{
		Root:     f.dir,
		Revision: head.Hash().String(),
		RefName:  resolved.RefName,
		Clean:    true,
		Reused:   true,
	}, nil
}

// peelToCommit resolves a possibly annotated-tag object hash to the commit
// it points at, using local objects only. Hashes that are not locally known
// tag objects come back unchanged; the caller falls back to fetching.
func peelToCommit(repo *gogit.Repository, hash plumbing.Hash) plumbing.Hash {
	tag, err := repo.TagObject(hash)
	if err != nil {
		return hash
	}
	commit, err := tag.Commit()
	if err != nil {
		return hash
	}
	return commit.Hash
}

func (f *Fetcher) verifyOrigin(repo *gogit.Repository) error {
	remote, err := repo.Remote("origin")
	if err != nil {
		return errors.FetchError(errors.CodeDirtyWorkingTree, "existing checkout has no origin remote").
			WithCause(err).
			WithContext("path", f.dir).
			UserAction().
			Build()
	}
	for _, url := range remote.Config().URLs {
		if url == f.url {
			return nil
		}
	}
	return errors.FetchError(errors.CodeDirtyWorkingTree, "existing checkout points at a different upstream").
		WithContext("path", f.dir).
		WithContext("expected_url", f.url).
		WithContext("actual_urls", fmt.Sprintf("%v", remote.Config().URLs)).
		UserAction().
		Build()
}

// updateTo fetches the resolved ref from origin and checks out its commit.
func (f *Fetcher) updateTo(ctx context.Context, repo *gogit.Repository, worktree *gogit.Worktree, resolved RemoteReference) error {
	slog.Info("Updating existing checkout", logfields.Path(f.dir), logfields.Revision(resolved.Hash))

	spec := gitcfg.RefSpec(fmt.Sprintf("+%s:%s", resolved.RefName, resolved.RefName))
	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{spec},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.FetchError(errors.CodeNetworkUnreachable, "fetch of resolved reference failed").
			WithCause(err).
			WithContext("url", f.url).
			Retryable().
			Build()
	}

	// The fetch above made the tag object local, so peeling succeeds here.
	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: peelToCommit(repo, plumbing.NewHash(resolved.Hash))}); err != nil {
		return errors.WrapError(err, errors.CategoryFetch, "checkout of resolved revision failed").
			WithContext("revision", resolved.Hash).
			Build()
	}
	return nil
}
