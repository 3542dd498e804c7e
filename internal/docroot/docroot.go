// Package docroot resolves request targets to files under a single
// document root and performs the file operations the handlers need.
package docroot

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// IndexFile is served for the "/" target.
const IndexFile = "index.html"

var (
	ErrOutsideRoot = errors.New("path escapes document root")
	ErrInvalidPath = errors.New("invalid request path")
	ErrNotFound    = errors.New("file not found")
)

type Root struct {
	dir string
}

// New returns a Root for dir, which must be an existing directory.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", abs)
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a request target to an absolute path under the root. The
// query string is dropped and percent-escapes are decoded; "/" maps to
// IndexFile. A target whose cleaned form leaves the root fails with
// ErrOutsideRoot.
func (r *Root) Resolve(target string) (string, error) {
	p, _, _ := strings.Cut(target, "?")
	p, err := url.PathUnescape(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return r.ResolveName(p)
}

// ResolveName is Resolve for an already decoded slash-separated name, such
// as a file name taken from a form field.
func (r *Root) ResolveName(name string) (string, error) {
	if strings.IndexByte(name, 0) != -1 {
		return "", fmt.Errorf("%w: NUL byte", ErrInvalidPath)
	}
	if name == "" || name == "/" {
		name = "/" + IndexFile
	}

	full := filepath.Join(r.dir, filepath.FromSlash(name))
	if !r.contains(full) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return full, nil
}

func (r *Root) contains(p string) bool {
	rel, err := filepath.Rel(r.dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Stat returns file info for a regular file. Missing files and
// directories both yield ErrNotFound.
func (r *Root) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return info, nil
}

// Open opens a regular file for reading and returns its info.
func (r *Root) Open(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return f, info, nil
}

// WriteFile replaces path with exactly n bytes from src, creating parent
// directories as needed. The data goes to a temporary file in the same
// directory that is renamed over path only once all n bytes arrived, so a
// failed write leaves any previous content intact. created reports whether
// path did not exist before.
func (r *Root) WriteFile(path string, src io.Reader, n int64) (created bool, written int64, err error) {
	if !r.contains(path) {
		return false, 0, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, 0, err
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return false, 0, fmt.Errorf("%s is a directory", path)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		created = true
	} else {
		return false, 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, 0, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	written, err = io.CopyN(tmp, src, n)
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("body ended after %d of %d bytes: %w", written, n, io.ErrUnexpectedEOF)
		}
		return false, written, err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return false, written, err
	}
	if err = tmp.Close(); err != nil {
		return false, written, err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return false, written, err
	}
	return created, written, nil
}

// CreateUnique creates a new file in dir (relative to the root) named after
// name with a random infix, e.g. "photo-1234567.jpg". Only the base of name
// is used.
func (r *Root) CreateUnique(dir, name string) (*os.File, error) {
	full := filepath.Join(r.dir, filepath.FromSlash(dir))
	if !r.contains(full) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return nil, err
	}

	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || base == ".." {
		base = "upload"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "upload"
	}

	f, err := os.CreateTemp(full, stem+"-*"+ext)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}
