package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileHandler is an io.Writer that appends log lines to <dir>/<base>.log and
// rotates it into <base>-<timestamp>.log once it grows past maxSizeMB.
type FileHandler struct {
	directory    string
	filenameBase string
	file         *os.File
	maxSizeMB    int64
	maxAgeDays   int
	maxBackups   int
	currentSize  int64
	now          func() time.Time
	mu           sync.Mutex
}

// FileHandlerOption is a function that configures a FileHandler
type FileHandlerOption func(*FileHandler)

// WithMaxSizeMB sets the maximum size of log files in megabytes
func WithMaxSizeMB(maxSizeMB int64) FileHandlerOption {
	return func(h *FileHandler) {
		h.maxSizeMB = maxSizeMB
	}
}

// WithMaxAgeDays sets the maximum age of rotated files in days
func WithMaxAgeDays(maxAgeDays int) FileHandlerOption {
	return func(h *FileHandler) {
		h.maxAgeDays = maxAgeDays
	}
}

// WithMaxBackups sets the maximum number of rotated files kept
func WithMaxBackups(maxBackups int) FileHandlerOption {
	return func(h *FileHandler) {
		h.maxBackups = maxBackups
	}
}

// NewFileHandler creates the directory if needed and opens the current log file
func NewFileHandler(directory, filenameBase string, options ...FileHandlerOption) (*FileHandler, error) {
	handler := &FileHandler{
		directory:    directory,
		filenameBase: filenameBase,
		maxSizeMB:    100,
		maxAgeDays:   7,
		maxBackups:   5,
		now:          time.Now,
	}

	for _, option := range options {
		option(handler)
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := handler.pruneBackups(); err != nil {
		return nil, fmt.Errorf("failed to clean old log files: %w", err)
	}
	if err := handler.open(); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return handler, nil
}

// Write implements io.Writer
func (h *FileHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentSize+int64(len(p)) > h.maxSizeMB*1024*1024 {
		if err := h.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := h.file.Write(p)
	h.currentSize += int64(n)
	return n, err
}

// Close closes the current file
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

func (h *FileHandler) currentPath() string {
	return filepath.Join(h.directory, h.filenameBase+".log")
}

func (h *FileHandler) open() error {
	file, err := os.OpenFile(h.currentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	h.file = file
	h.currentSize = info.Size()
	return nil
}

func (h *FileHandler) rotate() error {
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			return err
		}
		h.file = nil
	}

	backup := filepath.Join(h.directory,
		fmt.Sprintf("%s-%s.log", h.filenameBase, h.now().Format("20060102-150405.000")))
	if err := os.Rename(h.currentPath(), backup); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := h.open(); err != nil {
		return err
	}

	if err := h.pruneBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to clean old log files: %v\n", err)
	}
	return nil
}

// pruneBackups removes rotated files older than maxAgeDays and keeps at most maxBackups
func (h *FileHandler) pruneBackups() error {
	matches, err := filepath.Glob(filepath.Join(h.directory, h.filenameBase+"-*.log"))
	if err != nil {
		return err
	}

	type backup struct {
		path    string
		modTime time.Time
	}

	cutoff := h.now().Add(-time.Duration(h.maxAgeDays) * 24 * time.Hour)
	var kept []backup
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
			continue
		}
		kept = append(kept, backup{path: path, modTime: info.ModTime()})
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].modTime.After(kept[j].modTime)
	})

	for i := h.maxBackups; i < len(kept); i++ {
		os.Remove(kept[i].path)
	}
	return nil
}
