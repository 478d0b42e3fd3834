// Package filestore persists session slots as files in a directory.
// Several processes pointed at the same directory share one session; each process
// notices the others' writes through filesystem notifications, or by polling where
// notifications are unavailable.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/target/quiz-ui/internal/ports"
)

const (
	defaultPollInterval = time.Second
	fileSuffix          = ".slot"
	dirPerm             = 0o700
	filePerm            = 0o600
)

// Config configures a file-backed Storage.
type Config struct {
	Dir string
	// PollInterval is the rescan period used when filesystem notifications cannot be set up.
	PollInterval time.Duration
	// ForcePolling skips filesystem notifications.
	ForcePolling bool
	Logger       *slog.Logger
}

// Storage implements ports.Storage on top of a directory.
type Storage struct {
	dir      string
	interval time.Duration
	polling  bool
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]string // last value observed or written by this process, per key
}

var _ ports.Storage = (*Storage)(nil)

// New creates the directory if needed and returns a Storage over it.
func New(cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		dir:      cfg.Dir,
		interval: interval,
		polling:  cfg.ForcePolling,
		logger:   logger,
		seen:     make(map[string]string),
	}, nil
}

var keyReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_") //nolint:gochecknoglobals // immutable

func (s *Storage) path(key string) string {
	return filepath.Join(s.dir, keyReplacer.Replace(key)+fileSuffix)
}

func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes through a temp file and rename so readers never see a torn value.
func (s *Storage) Set(_ context.Context, key, value string) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.WriteString(value)
	cerr := tmp.Close()
	if err = errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod slot %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace slot %s: %w", key, err)
	}
	s.seen[key] = value
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	delete(s.seen, key)
	return nil
}

// Watch reports slots whose content changed since this process last wrote or observed
// them. Directory notifications trigger a rescan; when they cannot be set up the
// directory is polled every PollInterval instead.
func (s *Storage) Watch(ctx context.Context, fn func(ports.StorageEvent)) error {
	if _, err := s.scan(); err != nil {
		return err
	}

	if !s.polling {
		watcher, err := s.newWatcher()
		if err == nil {
			defer func() { _ = watcher.Close() }()
			return s.watchEvents(ctx, watcher, fn)
		}
		s.logger.WarnContext(ctx, "filesystem notifications unavailable, polling session storage",
			"dir", s.dir, "interval", s.interval, "error", err)
	}
	return s.poll(ctx, fn)
}

func (s *Storage) newWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err = watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	return watcher, nil
}

func (s *Storage) watchEvents(ctx context.Context, watcher *fsnotify.Watcher, fn func(ports.StorageEvent)) error {
	// A write landing between the initial scan and Add is picked up here.
	s.rescan(ctx, fn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !strings.HasSuffix(filepath.Base(ev.Name), fileSuffix) {
				continue
			}
			s.rescan(ctx, fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Overflow drops events; a full rescan resynchronizes.
			s.logger.WarnContext(ctx, "session storage watcher error", "dir", s.dir, "error", err)
			s.rescan(ctx, fn)
		}
	}
}

func (s *Storage) poll(ctx context.Context, fn func(ports.StorageEvent)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.rescan(ctx, fn)
		}
	}
}

func (s *Storage) rescan(ctx context.Context, fn func(ports.StorageEvent)) {
	changed, err := s.scan()
	if err != nil {
		s.logger.WarnContext(ctx, "scan session storage failed", "dir", s.dir, "error", err)
		return
	}
	for _, key := range changed {
		fn(ports.StorageEvent{Key: key})
	}
}

// scan compares the directory against the seen map, updates it and returns changed keys.
func (s *Storage) scan() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list storage dir: %w", err)
	}

	current := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(s.dir, name))
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, readErr)
		}
		current[strings.TrimSuffix(name, fileSuffix)] = string(data)
	}

	var changed []string
	for fileKey, value := range current {
		key := s.keyFor(fileKey)
		if prev, ok := s.seen[key]; !ok || prev != value {
			changed = append(changed, key)
			s.seen[key] = value
		}
	}
	for key := range s.seen {
		if _, ok := current[keyReplacer.Replace(key)]; !ok {
			changed = append(changed, key)
			delete(s.seen, key)
		}
	}
	return changed, nil
}

// keyFor maps a file stem back to the logical key when this process knows it.
// Keys written only by other processes are reported by their file stem.
func (s *Storage) keyFor(fileKey string) string {
	for key := range s.seen {
		if keyReplacer.Replace(key) == fileKey {
			return key
		}
	}
	return fileKey
}
