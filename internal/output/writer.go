package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"

	"github.com/idiotf/entry-video-compress/internal/archive"
)

// ErrBusy is returned when another conversion holds the output name.
var ErrBusy = errors.New("output archive is being written by another conversion")

// ErrExists is returned when a segment name is already taken by a file this
// conversion does not own.
var ErrExists = errors.New("output archive already exists and belongs to another conversion")

// Writer stores segments for one output name.
type Writer struct {
	dir  string
	stem string
	lock *flock.Flock

	mu         sync.Mutex
	temps      []string
	paths      []string
	superseded []string
	finished   bool
	committed  bool
}

// NewWriter prepares dir and locks the output name derived from input.
func NewWriter(dir, input string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	stem := Stem(input)
	lock := flock.New(filepath.Join(dir, stem+Extension+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", stem+Extension, ErrBusy)
	}
	return &Writer{dir: dir, stem: stem, lock: lock}, nil
}

// Segment writes seg to a temporary file. Segments must arrive in order.
func (w *Writer) Segment(seg archive.Segment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return errors.New("output writer already finished")
	}
	if seg.Index != len(w.temps) {
		return fmt.Errorf("segment %d arrived out of order (expected %d)", seg.Index, len(w.temps))
	}
	f, err := os.CreateTemp(w.dir, "."+w.stem+".*.partial")
	if err != nil {
		return fmt.Errorf("create segment file: %w", err)
	}
	w.temps = append(w.temps, f.Name())
	if _, err := f.Write(seg.Data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write segment %d: %w", seg.Index, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close segment %d: %w", seg.Index, err)
	}
	return nil
}

// Supersede marks outputs of an earlier conversion of the same input for
// removal on Commit. Only paths in the writer's directory that carry its
// archive name are ever removed.
func (w *Writer) Supersede(paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.superseded = append(w.superseded, paths...)
}

// Commit moves every segment into place, removes superseded outputs the new
// segments did not overwrite, and releases the lock. It returns the final
// paths in order. A failed move removes the segments not yet moved.
func (w *Writer) Commit() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		if w.committed {
			return append([]string(nil), w.paths...), nil
		}
		return nil, errors.New("output writer already discarded")
	}
	if len(w.temps) == 0 {
		return nil, errors.New("no segments to commit")
	}
	if err := w.checkTargetsLocked(); err != nil {
		return nil, errors.Join(err, w.abortLocked())
	}
	paths := make([]string, 0, len(w.temps))
	for i, temp := range w.temps {
		target := filepath.Join(w.dir, SegmentName(w.stem, i, len(w.temps)))
		err := os.Chmod(temp, 0o644)
		if err == nil {
			err = os.Rename(temp, target)
		}
		if err != nil {
			w.temps = w.temps[i:]
			return nil, errors.Join(fmt.Errorf("move segment %d into place: %w", i, err), w.abortLocked())
		}
		paths = append(paths, target)
	}
	w.paths = paths
	w.temps = nil
	w.finished = true
	w.committed = true
	err := errors.Join(w.removeSupersededLocked(paths), w.releaseLocked())
	return append([]string(nil), paths...), err
}

// Discard removes temporary segments and releases the lock. It is a no-op
// after Commit.
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return nil
	}
	return w.abortLocked()
}

func (w *Writer) abortLocked() error {
	var errs []error
	for _, temp := range w.temps {
		if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	w.temps = nil
	w.finished = true
	errs = append(errs, w.releaseLocked())
	return errors.Join(errs...)
}

// Name is the base archive name.
func (w *Writer) Name() string {
	return w.stem + Extension
}

// checkTargetsLocked refuses to replace a numbered archive this input is
// not known to own; <stem>.<n>.ent may be another input's single archive.
func (w *Writer) checkTargetsLocked() error {
	if len(w.temps) < 2 {
		return nil
	}
	for i := range w.temps {
		target := filepath.Join(w.dir, SegmentName(w.stem, i, len(w.temps)))
		if slices.ContainsFunc(w.superseded, func(p string) bool { return filepath.Clean(p) == target }) {
			continue
		}
		if _, err := os.Lstat(target); err == nil {
			return fmt.Errorf("%s: %w", filepath.Base(target), ErrExists)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("check %s: %w", filepath.Base(target), err)
		}
	}
	return nil
}

func (w *Writer) removeSupersededLocked(current []string) error {
	var errs []error
	for _, path := range w.superseded {
		path = filepath.Clean(path)
		if slices.Contains(current, path) || filepath.Dir(path) != w.dir || !isOutputName(w.stem, filepath.Base(path)) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove superseded output: %w", err))
		}
	}
	w.superseded = nil
	return errors.Join(errs...)
}

func (w *Writer) releaseLocked() error {
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("release output lock: %w", err)
	}
	_ = os.Remove(w.lock.Path())
	return nil
}
