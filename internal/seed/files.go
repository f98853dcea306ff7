package seed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidPath  = errors.New("invalid seed file path")
	ErrFileNotFound = errors.New("seed file not found")
)

// FileInfo describes a seed file in the directory
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modifiedAt"`
}

// Files manages the seed file directory. Every path handed out is
// confined to Dir.
type Files struct {
	Dir string
}

// NewFiles creates a manager for dir
func NewFiles(dir string) *Files {
	return &Files{Dir: dir}
}

// List returns the *.json files in the directory, newest first.
// A missing directory is an empty list.
func (f *Files) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Resolve maps a bare file name to its path in the directory.
// Names with separators, dot segments or without a .json suffix are rejected.
func (f *Files) Resolve(name string) (string, error) {
	if name == "" ||
		strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") ||
		!strings.HasSuffix(name, ".json") ||
		name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(f.Dir, name), nil
}

// Within resolves a relative or absolute path and checks it lies inside
// the directory and names a .json file
func (f *Files) Within(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	root, err := filepath.Abs(f.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve seed directory: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the seed directory", ErrInvalidPath, path)
	}
	if !strings.HasSuffix(target, ".json") {
		return "", fmt.Errorf("%w: %q is not a .json file", ErrInvalidPath, path)
	}
	return target, nil
}

// WithinDir is Within for directories, used for TypeScript output
func (f *Files) WithinDir(path string) (string, error) {
	root, err := filepath.Abs(f.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve seed directory: %w", err)
	}
	if path == "" {
		return root, nil
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the seed directory", ErrInvalidPath, path)
	}
	return target, nil
}

// Open opens a seed file by name for reading
func (f *Files) Open(name string) (*os.File, FileInfo, error) {
	path, err := f.Resolve(name)
	if err != nil {
		return nil, FileInfo{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, FileInfo{}, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, FileInfo{}, err
	}
	return file, FileInfo{Name: name, Size: stat.Size(), ModTime: stat.ModTime()}, nil
}

// Delete removes a seed file by name
func (f *Files) Delete(name string) error {
	path, err := f.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return fmt.Errorf("failed to delete seed file: %w", err)
	}
	return nil
}
