// Package uploads stores user files under <root>/<conversation_id>/ with an
// upload timestamp prefixed to every file name.
package uploads

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultMaxBytes = 50 * 1024 * 1024
	stampLayout     = "20060102_150405"
)

var (
	ErrOutsideRoot = errors.New("path resolves outside upload root")
	ErrNotFound    = errors.New("file not found")
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidName = errors.New("invalid file name")
)

type FileInfo struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	UploadDate   time.Time `json:"upload_date"`
	Path         string    `json:"path"`
}

type Store struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

func NewStore(root string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create upload root", goerr.V("root", root))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve upload root", goerr.V("root", root))
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Store{root: abs, maxBytes: maxBytes, now: time.Now}, nil
}

func (s *Store) Root() string    { return s.root }
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Resolve maps a path relative to the root (or absolute) to an absolute path,
// rejecting anything that escapes the root, including through symlinks.
func (s *Store) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", goerr.Wrap(ErrInvalidName, "empty path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	resolved := filepath.Clean(path)
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}
	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", goerr.Wrap(ErrOutsideRoot, "path rejected", goerr.V("path", path))
	}
	return resolved, nil
}

func (s *Store) conversationDir(conversationID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(conversationID, 10))
}

// Save writes r as <stamp>_<name> in the conversation directory.
func (s *Store) Save(conversationID int64, name string, r io.Reader) (*FileInfo, error) {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return nil, goerr.Wrap(ErrInvalidName, "unusable file name", goerr.V("name", name))
	}

	dir := s.conversationDir(conversationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation dir", goerr.V("dir", dir))
	}

	uploaded := s.now()
	stored := uploaded.Format(stampLayout) + "_" + name
	full := filepath.Join(dir, stored)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create file", goerr.V("path", full))
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = goerr.Wrap(ErrTooLarge, "upload exceeds limit", goerr.V("max_bytes", s.maxBytes))
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to write file", goerr.V("path", full))
	}

	return &FileInfo{
		Filename:     stored,
		OriginalName: name,
		Size:         n,
		UploadDate:   uploaded,
		Path:         full,
	}, nil
}

// List returns the files of a conversation, oldest upload first. A
// conversation without uploads yields an empty list.
func (s *Store) List(conversationID int64) ([]FileInfo, error) {
	dir := s.conversationDir(conversationID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, goerr.Wrap(err, "failed to list uploads", goerr.V("dir", dir))
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Filename:     e.Name(),
			OriginalName: OriginalName(e.Name()),
			Size:         info.Size(),
			UploadDate:   info.ModTime(),
			Path:         filepath.Join(dir, e.Name()),
		})
	}
	slices.SortFunc(out, func(a, b FileInfo) int { return strings.Compare(a.Filename, b.Filename) })
	return out, nil
}

// Delete removes one file of a conversation.
func (s *Store) Delete(conversationID int64, filename string) error {
	full, err := s.Resolve(filepath.Join(s.conversationDir(conversationID), filename))
	if err != nil {
		return err
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return goerr.Wrap(ErrNotFound, "no such upload", goerr.V("filename", filename))
	}
	if err := os.Remove(full); err != nil {
		return goerr.Wrap(err, "failed to delete upload", goerr.V("path", full))
	}
	return nil
}

// OriginalName strips the upload stamp from a stored file name.
func OriginalName(stored string) string {
	parts := strings.SplitN(stored, "_", 3)
	if len(parts) == 3 {
		if _, err := time.Parse(stampLayout, parts[0]+"_"+parts[1]); err == nil {
			return parts[2]
		}
	}
	return stored
}
