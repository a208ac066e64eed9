package resource

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

const fileScheme = "file://"

// HandleFor returns the handle of a local filesystem path.
func HandleFor(p string) state.Handle {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return state.Handle(fileScheme + filepath.ToSlash(p))
}

// PathOf returns the local path behind a handle created by HandleFor.
func PathOf(h state.Handle) (string, error) {
	s := string(h)
	if !strings.HasPrefix(s, fileScheme) {
		return "", errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Path(s).
			Detail("not a file handle").
			Build()
	}
	return filepath.FromSlash(strings.TrimPrefix(s, fileScheme)), nil
}

// LocalStorage is a qspruntime.Storage over the local filesystem. Game
// scripts are usually written on case-insensitive filesystems, so a path
// segment that does not exist verbatim is matched case-insensitively.
type LocalStorage struct {
	roots []string
}

var _ qspruntime.Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a storage. When roots are given, handles outside
// every root are refused.
func NewLocalStorage(roots ...string) *LocalStorage {
	s := &LocalStorage{}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			s.roots = append(s.roots, filepath.Clean(abs))
		}
	}
	return s
}

// Resolve maps a path relative to dir onto a handle. Read access requires
// an existing regular file; write access requires an existing parent
// directory. Paths may use either slash and may not leave dir.
func (s *LocalStorage) Resolve(dir state.Handle, rel string, access qspruntime.Access, mimeType string) (state.Handle, error) {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), "\\", "/")
	if rel == "" {
		return "", errors.InvalidInput(errors.PhaseResolve, "empty path")
	}
	if strings.HasPrefix(rel, fileScheme) {
		return s.check(state.Handle(rel), access)
	}
	if strings.Contains(rel, "://") {
		return "", errors.Resolution(rel, errors.InvalidInput(errors.PhaseResolve, "unsupported scheme"))
	}

	base, err := PathOf(dir)
	if err != nil {
		return "", errors.Resolution(rel, err)
	}
	cleaned := path.Clean("/" + rel)
	if c := path.Clean(rel); c == ".." || strings.HasPrefix(c, "../") {
		return "", errors.Resolution(rel, errors.InvalidInput(errors.PhaseResolve, "path leaves the game directory"))
	}

	full := lookupFold(base, strings.Split(strings.TrimPrefix(cleaned, "/"), "/"))
	return s.check(HandleFor(full), access)
}

func (s *LocalStorage) check(h state.Handle, access qspruntime.Access) (state.Handle, error) {
	p, err := PathOf(h)
	if err != nil {
		return "", err
	}
	if !s.permitted(p) {
		return "", errors.Resolution(p, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Detail("outside permitted roots").
			Build())
	}

	switch access {
	case qspruntime.AccessWrite:
		info, err := os.Stat(filepath.Dir(p))
		if err != nil || !info.IsDir() {
			return "", errors.Resolution(p, errors.NotFound(errors.PhaseResolve, "directory", filepath.Dir(p)))
		}
	default:
		info, err := os.Stat(p)
		if err != nil {
			return "", errors.Resolution(p, err)
		}
		if info.IsDir() {
			return "", errors.Resolution(p, errors.InvalidInput(errors.PhaseResolve, "is a directory"))
		}
	}
	return h, nil
}

func (s *LocalStorage) permitted(p string) bool {
	if len(s.roots) == 0 {
		return true
	}
	p = filepath.Clean(p)
	for _, r := range s.roots {
		if p == r || strings.HasPrefix(p, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Readable reports whether h names an existing, readable regular file.
func (s *LocalStorage) Readable(h state.Handle) bool {
	p, err := PathOf(h)
	if err != nil || !s.permitted(p) {
		return false
	}
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}

func (s *LocalStorage) Open(h state.Handle) (io.ReadCloser, error) {
	p, err := PathOf(h)
	if err != nil {
		return nil, err
	}
	if !s.permitted(p) {
		return nil, errors.Resolution(p, errors.InvalidInput(errors.PhaseResolve, "outside permitted roots"))
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).Path(p).Cause(err).Build()
	}
	return f, nil
}

func (s *LocalStorage) Create(h state.Handle) (io.WriteCloser, error) {
	p, err := PathOf(h)
	if err != nil {
		return nil, err
	}
	if !s.permitted(p) {
		return nil, errors.Resolution(p, errors.InvalidInput(errors.PhaseResolve, "outside permitted roots"))
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, errors.New(errors.PhaseSave, errors.KindInvalidInput).Path(p).Cause(err).Build()
	}
	return f, nil
}

// lookupFold joins segments onto base, falling back to a case-insensitive
// match for segments that do not exist verbatim.
func lookupFold(base string, segments []string) string {
	cur := base
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		next := filepath.Join(cur, seg)
		if _, err := os.Lstat(next); err != nil {
			if entries, rerr := os.ReadDir(cur); rerr == nil {
				for _, e := range entries {
					if strings.EqualFold(e.Name(), seg) {
						next = filepath.Join(cur, e.Name())
						break
					}
				}
			}
		}
		cur = next
	}
	return cur
}
