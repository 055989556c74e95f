package helpers

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// CounterWriter tracks the number of bytes written to the underlying writer.
// Used by the native download strategy to report progress.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// FileBLAKE3 computes the BLAKE3 checksum of a file and returns it as an
// uppercase hex string.
func FileBLAKE3(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", filepath, err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath, err)
	}
	return strings.ToUpper(hex.EncodeToString(hasher.Sum(nil))), nil
}

// CheckBLAKE3 verifies a file against an expected BLAKE3 hex digest.
// Comparison is case-insensitive; an empty expected hash never matches.
func CheckBLAKE3(filepath string, expected string) bool {
	if expected == "" {
		return false
	}
	sum, err := FileBLAKE3(filepath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("Error hashing file %s during check", filepath)
		}
		return false
	}
	return strings.EqualFold(sum, strings.TrimSpace(expected))
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
