// Package relocate implements the final pipeline stage: it moves the built
// module binary, its version-numbered support directory and its companion
// shared libraries out of the build tree into their installation locations.
// Moves are planned up front and executed with an undo log so a mid-sequence
// failure rolls the completed moves back instead of leaving a split install.
package relocate

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blenderpy/bpybuild/internal/buildsys"
	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/logfields"
)

// displacedSuffix is appended to a pre-existing support directory so the
// install never destroys what it replaces.
const displacedSuffix = ".old"

// Placement reports where the artifacts ended up.
type Placement struct {
	ModulePath    string
	SupportDir    string
	CompanionDLLs []string
}

// Mover performs a single filesystem move. Abstracted so tests can inject
// failures at any point in the move sequence.
type Mover interface {
	Move(src, dst string) error
}

// osMover moves by rename, falling back to copy and delete when source and
// destination sit on different filesystems.
type osMover struct{}

func (osMover) Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyPath(src, dst); err != nil {
		os.RemoveAll(dst)
		return err
	}
	return os.RemoveAll(src)
}

// Relocator moves build artifacts into their installation locations.
type Relocator struct {
	mover Mover
}

// Option configures a Relocator.
type Option func(*Relocator)

// WithMover overrides the filesystem mover (tests).
func WithMover(m Mover) Option {
	return func(r *Relocator) { r.mover = m }
}

// NewRelocator creates a relocator.
func NewRelocator(opts ...Option) *Relocator {
	r := &Relocator{mover: osMover{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// move is one planned relocation step, kept for the undo log.
type move struct {
	src, dst string
}

// Relocate moves the module binary and its companion libraries into the
// install directory and the support directory next to the interpreter.
// A support directory already present at the destination is displaced to a
// ".old" sibling, not deleted. On a mid-sequence failure every completed
// move is reversed and the build tree is left intact for a retry.
func (r *Relocator) Relocate(output *buildsys.Output, cfg *config.BuildConfig) (*Placement, error) {
	for _, dir := range []string{cfg.InstallDir, cfg.InterpreterDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.WrapError(err, errors.CategoryRelocate, "failed to create installation directory").
				WithContext("path", dir).
				Build()
		}
	}

	placement, moves := plan(output, cfg)

	var undo []move
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := r.mover.Move(undo[i].dst, undo[i].src); err != nil {
				slog.Error("Rollback move failed", logfields.Path(undo[i].dst), logfields.Error(err))
			}
		}
	}

	if placement.SupportDir != "" {
		if err := r.displace(placement.SupportDir, &undo); err != nil {
			return nil, err
		}
	}

	for _, m := range moves {
		slog.Info("Relocating artifact", logfields.Path(m.dst))
		if err := r.mover.Move(m.src, m.dst); err != nil {
			rollback()
			code := errors.CodeNone
			if len(undo) > 0 {
				code = errors.CodePartialFailure
			}
			return nil, errors.RelocateError(code, fmt.Sprintf("failed to move %s into place", filepath.Base(m.src))).
				WithCause(err).
				WithContext("src", m.src).
				WithContext("dst", m.dst).
				Build()
		}
		undo = append(undo, m)
	}

	return placement, nil
}

// plan derives the destination for every artifact.
func plan(output *buildsys.Output, cfg *config.BuildConfig) (*Placement, []move) {
	placement := &Placement{
		ModulePath: filepath.Join(cfg.InstallDir, filepath.Base(output.ModulePath)),
	}
	moves := []move{{src: output.ModulePath, dst: placement.ModulePath}}

	if output.SupportDir != "" {
		placement.SupportDir = filepath.Join(cfg.InterpreterDir, filepath.Base(output.SupportDir))
		moves = append(moves, move{src: output.SupportDir, dst: placement.SupportDir})
	}

	for _, dll := range output.CompanionDLLs {
		dst := filepath.Join(cfg.InstallDir, filepath.Base(dll))
		placement.CompanionDLLs = append(placement.CompanionDLLs, dst)
		moves = append(moves, move{src: dll, dst: dst})
	}
	return placement, moves
}

// displace pushes an existing support directory aside so the new one can
// take its place, recording the rename in the undo log.
func (r *Relocator) displace(dst string, undo *[]move) error {
	if _, err := os.Stat(dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Anything else (permissions, a file in the path) must surface
		// here, not as a confusing overwrite failure one move later.
		return errors.WrapError(err, errors.CategoryRelocate, "failed to inspect existing support directory").
			WithContext("path", dst).
			Build()
	}

	displaced := dst + displacedSuffix
	if err := os.RemoveAll(displaced); err != nil {
		return errors.WrapError(err, errors.CategoryRelocate, "failed to clear previously displaced support directory").
			WithContext("path", displaced).
			Build()
	}
	slog.Info("Displacing existing support directory", logfields.Path(dst))
	if err := r.mover.Move(dst, displaced); err != nil {
		return errors.RelocateError(errors.CodeNone, "failed to displace existing support directory").
			WithCause(err).
			WithContext("path", dst).
			Build()
	}
	*undo = append(*undo, move{src: dst, dst: displaced})
	return nil
}

// copyPath duplicates a file or directory tree.
func copyPath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, info.Mode().Perm()|0o200); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return copyFile(src, dst, info.Mode().Perm())
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	return err
}
