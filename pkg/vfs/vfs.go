// Package vfs provides the file systems the resolver reads Flow sources
// through: the host disk, and an in-memory disk that editor hosts and tests
// use to serve unsaved or synthetic files.
package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SourceExt is the extension LoadFrom picks up.
const SourceExt = ".flow"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidPath  = errors.New("invalid path")
)

// FS is the read side the resolver needs.
type FS interface {
	ReadFile(path string) ([]byte, error)
}

// OSDisk reads from the host file system.
type OSDisk struct{}

// ReadFile reads path from disk, mapping a missing file to ErrFileNotFound.
func (OSDisk) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	return data, err
}

// PathInfo returns the absolute, cleaned form of relPath and its parent directory.
func PathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	return fullPath, filepath.Dir(fullPath), nil
}

type FileEntry struct {
	Data     []byte
	Modified time.Time
}

// VirtualDisk is an in-memory file system keyed by cleaned path. Reads that
// miss fall through to Lower when it is set, which lets a host overlay open
// buffers on top of the disk.
type VirtualDisk struct {
	Mu    sync.RWMutex
	Files map[string]*FileEntry
	Lower FS
}

// NewVirtualDisk creates an empty VirtualDisk with no lower layer.
func NewVirtualDisk() *VirtualDisk {
	return &VirtualDisk{Files: make(map[string]*FileEntry)}
}

func cleanKey(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	return filepath.Clean(path), nil
}

// Write stores a copy of data under path, replacing any previous content.
func (vd *VirtualDisk) Write(path string, data []byte) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}

	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	// Deep copy data to prevent external mutations
	newData := make([]byte, len(data))
	copy(newData, data)

	entry, ok := vd.Files[key]
	if !ok {
		entry = &FileEntry{}
		vd.Files[key] = entry
	}
	entry.Data = newData
	entry.Modified = time.Now()
	return nil
}

// WriteString is Write for string content.
func (vd *VirtualDisk) WriteString(path, content string) error {
	return vd.Write(path, []byte(content))
}

// ReadFile returns a copy of the file at path, consulting Lower on a miss.
func (vd *VirtualDisk) ReadFile(path string) ([]byte, error) {
	key, err := cleanKey(path)
	if err != nil {
		return nil, err
	}

	vd.Mu.RLock()
	entry, ok := vd.Files[key]
	var data []byte
	if ok {
		data = make([]byte, len(entry.Data))
		copy(data, entry.Data)
	}
	lower := vd.Lower
	vd.Mu.RUnlock()

	if ok {
		return data, nil
	}
	if lower != nil {
		return lower.ReadFile(path)
	}
	return nil, ErrFileNotFound
}

// List returns a sorted list of all paths held in memory.
func (vd *VirtualDisk) List() []string {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	keys := make([]string, 0, len(vd.Files))
	for k := range vd.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Modified returns the last write time of path.
func (vd *VirtualDisk) Modified(path string) (time.Time, error) {
	key, err := cleanKey(path)
	if err != nil {
		return time.Time{}, err
	}

	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	entry, ok := vd.Files[key]
	if !ok {
		return time.Time{}, ErrFileNotFound
	}
	return entry.Modified, nil
}

// LoadFrom copies every .flow file under dir into memory, keyed by its
// absolute path. Returns nil if the directory does not exist.
func (vd *VirtualDisk) LoadFrom(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != SourceExt {
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entry := &FileEntry{Data: raw, Modified: time.Now()}
		if info, err := d.Info(); err == nil {
			entry.Modified = info.ModTime()
		}
		vd.Files[filepath.Clean(p)] = entry
		return nil
	})
}
