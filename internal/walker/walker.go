package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"

	"github.com/nao1215/tchunt/internal/model"
)

var (
	// ErrRootNotFound is returned when the scan root does not exist.
	ErrRootNotFound = errors.New("scan root not found")

	// ErrRootNotDirectory is returned when the scan root is not a directory.
	ErrRootNotDirectory = errors.New("scan root is not a directory")

	// ErrRootUnreadable is returned when the scan root cannot be listed.
	ErrRootUnreadable = errors.New("scan root is not readable")
)

// Options configures traversal.
type Options struct {
	// FollowSymlinks descends into symlinked directories and reports the
	// metadata of link targets. Directories reached twice are skipped.
	FollowSymlinks bool

	// OneFileSystem skips directories on a different device than the root.
	OneFileSystem bool

	// Exclude holds filepath.Match patterns tested against entry base
	// names. Matching directories are not descended into.
	Exclude []string

	// Logger receives per-entry diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats counts what a walk saw.
type Stats struct {
	// Entries is the number of entries passed to the callback.
	Entries int64

	// Errors is the number of entries skipped because they could not be read.
	Errors int64

	// Excluded is the number of entries matching an exclude pattern.
	Excluded int64

	// Pruned is the number of directories skipped because they were on
	// another device or had already been visited.
	Pruned int64
}

// EntryFunc receives each discovered entry. Returning an error stops the
// walk and makes Walk return that error.
type EntryFunc func(model.PathEntry) error

// Walker traverses directory trees.
type Walker struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Walker.
func New(opts Options) *Walker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{opts: opts, logger: logger}
}

// haltError carries an error that must stop the walk through godirwalk's
// error callback.
type haltError struct {
	err error
}

func (h haltError) Error() string { return h.err.Error() }

func (h haltError) Unwrap() error { return h.err }

// walkState is the per-call traversal state. godirwalk invokes callbacks
// from a single goroutine, so no locking is needed.
type walkState struct {
	root     string
	resolved string
	rootDev  uint64
	visited  map[fileID]struct{}
	stats    Stats
}

// Walk visits every entry below root, excluding root itself, and calls fn
// for each one. Directories are reported too; deciding what to evaluate is
// the caller's job. Entry order is unspecified.
//
// Errors about root (missing, not a directory, unreadable) are fatal and
// returned before any entry is produced.
func (w *Walker) Walk(ctx context.Context, root string, fn EntryFunc) (Stats, error) {
	st, err := w.prepare(root)
	if err != nil {
		return Stats{}, err
	}

	err = godirwalk.Walk(st.resolved, &godirwalk.Options{
		Unsorted:            true,
		FollowSymbolicLinks: w.opts.FollowSymlinks,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			return w.visit(ctx, st, osPathname, de, fn)
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			var h haltError
			if errors.As(err, &h) {
				return godirwalk.Halt
			}
			st.stats.Errors++
			w.logger.Debug("skipping unreadable entry",
				slog.String("path", w.display(st, osPathname)),
				slog.String("error", err.Error()))
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		var h haltError
		if errors.As(err, &h) {
			return st.stats, h.err
		}
		return st.stats, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return st.stats, nil
}

// prepare resolves and validates the root.
func (w *Walker) prepare(root string) (*walkState, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, root, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	dir, err := os.Open(resolved) //nolint:gosec // the scan root is user input by definition
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, root, err)
	}
	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		_ = dir.Close() //nolint:errcheck // read-only handle
		return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, root, err)
	}
	_ = dir.Close() //nolint:errcheck // read-only handle

	st := &walkState{
		root:     filepath.Clean(root),
		resolved: resolved,
		visited:  make(map[fileID]struct{}),
	}
	if id, ok := lookupID(resolved, true); ok {
		st.rootDev = id.dev
		st.visited[id] = struct{}{}
	}
	return st, nil
}

func (w *Walker) visit(ctx context.Context, st *walkState, osPathname string, de *godirwalk.Dirent, fn EntryFunc) error {
	if err := ctx.Err(); err != nil {
		return haltError{err: err}
	}
	if osPathname == st.resolved {
		return nil
	}

	if w.excluded(de.Name()) {
		st.stats.Excluded++
		return godirwalk.SkipThis
	}

	var (
		info fs.FileInfo
		err  error
	)
	if w.opts.FollowSymlinks {
		info, err = os.Stat(osPathname)
	} else {
		info, err = os.Lstat(osPathname)
	}
	if err != nil {
		return err
	}

	path := w.display(st, osPathname)
	if info.IsDir() && w.prune(st, osPathname, path) {
		st.stats.Pruned++
		return godirwalk.SkipThis
	}

	st.stats.Entries++
	if err := fn(model.NewPathEntry(path, info)); err != nil {
		return haltError{err: err}
	}
	return nil
}

// prune reports whether a directory must not be descended into.
func (w *Walker) prune(st *walkState, osPathname, path string) bool {
	if !w.opts.OneFileSystem && !w.opts.FollowSymlinks {
		return false
	}
	id, ok := lookupID(osPathname, w.opts.FollowSymlinks)
	if !ok {
		return false
	}
	if w.opts.OneFileSystem && id.dev != st.rootDev {
		w.logger.Debug("not crossing file system boundary", slog.String("path", path))
		return true
	}
	if w.opts.FollowSymlinks {
		if _, seen := st.visited[id]; seen {
			w.logger.Debug("directory already visited", slog.String("path", path))
			return true
		}
		st.visited[id] = struct{}{}
	}
	return false
}

func (w *Walker) excluded(name string) bool {
	for _, pattern := range w.opts.Exclude {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// display maps a path below the resolved root back under the root as the
// user wrote it.
func (w *Walker) display(st *walkState, osPathname string) string {
	rel, err := filepath.Rel(st.resolved, osPathname)
	if err != nil {
		return osPathname
	}
	return filepath.Join(st.root, rel)
}
