// Package database wraps bitcask as the fetch-history store. Values are
// gzip-compressed JSON HistoryEntry records keyed by source URL.
package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go-modelcart/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// entryKeyPrefix namespaces history entries from any other keys.
const entryKeyPrefix = "url_"

// DB wraps the bitcask database instance and provides helper methods.
type DB struct {
	db           *bitcask.Bitcask
	sync.RWMutex // guards db against concurrent command use
}

// Open initializes and returns a DB instance, creating parent directories
// as needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("History database opened at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database.
func (d *DB) Close() error {
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value associated with a key and decompresses it if
// necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair in the database.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressedValue)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting compressed key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs, decompressing each value before
// calling fn.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: error getting value for key %s", string(key))
			return nil
		}

		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: error decompressing value for key %s", string(key))
			return nil
		}

		return fn(key, value)
	})
}

// --- History entry helpers ---

func entryKey(url string) []byte {
	return []byte(entryKeyPrefix + url)
}

// PutEntry serializes and stores a history entry keyed by its source URL.
func (d *DB) PutEntry(entry models.HistoryEntry) error {
	if entry.URL == "" {
		return errors.New("cannot store history entry with empty URL")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling history entry for %s: %w", entry.URL, err)
	}
	return d.Put(entryKey(entry.URL), data)
}

// GetEntry retrieves the history entry for a source URL.
func (d *DB) GetEntry(url string) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	raw, err := d.Get(entryKey(url))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("error unmarshalling history entry for %s: %w", url, err)
	}
	return entry, nil
}

// ListEntries returns every stored history entry. Corrupt records are
// skipped with a warning rather than aborting the listing.
func (d *DB) ListEntries() ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := d.Fold(func(key []byte, value []byte) error {
		if !bytes.HasPrefix(key, []byte(entryKeyPrefix)) {
			return nil
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping malformed history entry %s", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning history entries: %w", err)
	}
	return entries, nil
}

// --- Compression helpers ---

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		gReader, err := gzip.NewReader(bytes.NewReader(value))
		if err != nil {
			log.WithError(err).Warn("Error creating gzip reader for value, returning raw data")
			return value, nil
		}
		defer gReader.Close()

		decompressed, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warn("Error decompressing value, returning raw data")
			return value, nil
		}
		return decompressed, nil
	}

	return value, nil
}

// compressGzip compresses the value using gzip at the given level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	// Close must be called to flush buffers.
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
