package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// DefaultPrefix namespaces keys the same way the host bridge does in
// localStorage.
const DefaultPrefix = "ait_"

// Store is the key/value store behind the storage capability family. It is
// memory-resident; Open and Flush persist it to a brotli-compressed JSON
// snapshot.
type Store struct {
	prefix   string
	filename string
	quality  int
	data     map[string]string
	dirty    bool
	logger   *utils.Logger
	mu       sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithQuality sets the brotli quality used by Snapshot (0-11).
func WithQuality(q int) Option {
	return func(s *Store) { s.quality = q }
}

// WithLogger attaches a logger.
func WithLogger(l *utils.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		prefix:  DefaultPrefix,
		quality: brotli.DefaultCompression,
		data:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = utils.DefaultLogger("storage")
	}
	return s
}

// Open returns a store backed by filename. A missing file is an empty
// store; a corrupt one is an error.
func Open(filename string, opts ...Option) (*Store, error) {
	s := New(opts...)
	s.filename = filename

	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, utils.WrapErrorf(err, "open storage snapshot %s", filename)
	}
	defer f.Close()

	if err := s.Restore(f); err != nil {
		return nil, utils.WrapErrorf(err, "load storage snapshot %s", filename)
	}
	s.logger.Debug("Loaded storage snapshot",
		utils.String("file", filename),
		utils.Int("keys", s.Len()))
	return s, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	s.mu.Lock()
	s.data[s.key(key)] = value
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Get returns the value under key. Missing keys yield "" and false.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[s.key(key)]
	return v, ok
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	if _, ok := s.data[s.key(key)]; ok {
		delete(s.data, s.key(key))
		s.dirty = true
	}
	s.mu.Unlock()
	return nil
}

// Keys lists stored keys without the prefix, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, s.prefix) {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len is the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot writes the whole store as brotli-compressed JSON.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	raw, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	bw := brotli.NewWriterLevel(w, s.quality)
	if _, err := bw.Write(raw); err != nil {
		bw.Close()
		return err
	}
	return bw.Close()
}

// Restore replaces the store contents with a Snapshot.
func (s *Store) Restore(r io.Reader) error {
	raw, err := io.ReadAll(brotli.NewReader(r))
	if err != nil {
		return utils.WrapError(err, "decompress snapshot")
	}

	data := make(map[string]string)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return utils.WrapError(err, "decode snapshot")
		}
	}

	s.mu.Lock()
	s.data = data
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Flush writes the snapshot file if the store changed since the last
// flush. Stores created with New have no file and Flush is a no-op.
func (s *Store) Flush() error {
	if s.filename == "" {
		return nil
	}

	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()
	if !dirty {
		return nil
	}

	tmp := s.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return utils.WrapErrorf(err, "create %s", tmp)
	}
	if err := s.Snapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return utils.WrapError(err, "write snapshot")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.filename); err != nil {
		return utils.WrapErrorf(err, "replace %s", s.filename)
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	s.logger.Debug("Flushed storage snapshot", utils.String("file", s.filename))
	return nil
}
