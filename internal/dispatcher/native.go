package dispatcher

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"go-modelcart/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// nativeChunkSize is the copy buffer size for streaming bodies to disk.
const nativeChunkSize = 32 * 1024

// NativeStrategy streams the body with the built-in HTTP client. It is
// always available and therefore sits last in the chain. The body is
// written to a temporary file in the destination directory and renamed
// into place on success, so a failed attempt never leaves a partial file
// under the final name.
type NativeStrategy struct {
	client    *http.Client
	userAgent string
}

func NewNativeStrategy(client *http.Client, userAgent string) *NativeStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &NativeStrategy{client: client, userAgent: userAgent}
}

func (s *NativeStrategy) Name() string    { return "native-http" }
func (s *NativeStrategy) Available() bool { return true }

func (s *NativeStrategy) Fetch(url, destPath string, progress ProgressFunc) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("performing request for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: received status %d from %s", ErrHTTPStatus, resp.StatusCode, url)
	}

	targetDir := filepath.Dir(destPath)
	tempFile, err := os.CreateTemp(targetDir, filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file in %s: %v", ErrFileSystem, targetDir, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	// Progress can only be derived when the server states a length.
	totalSize, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)

	var dst io.Writer
	counter := &helpers.CounterWriter{Writer: tempFile}
	if progress != nil && totalSize > 0 {
		dst = &progressWriter{counter: counter, total: totalSize, progress: progress}
	} else {
		dst = counter
	}

	log.Debugf("Streaming %s to %s (%s)", url, tempFile.Name(), helpers.BytesToSize(totalSize))
	buf := make([]byte, nativeChunkSize)
	if _, err := io.CopyBuffer(dst, resp.Body, buf); err != nil {
		tempFile.Close()
		return fmt.Errorf("%w: writing %s: %v", ErrFileSystem, tempFile.Name(), err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrFileSystem, tempFile.Name(), err)
	}

	if err := os.Rename(tempFile.Name(), destPath); err != nil {
		return fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, tempFile.Name(), destPath, err)
	}
	shouldCleanupTemp = false
	return nil
}

// progressWriter reports percentage progress as bytes flow through the
// underlying CounterWriter.
type progressWriter struct {
	counter  *helpers.CounterWriter
	total    uint64
	progress ProgressFunc
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.counter.Write(p)
	if err == nil && pw.total > 0 {
		pw.progress(float64(pw.counter.Total) / float64(pw.total) * 100)
	}
	return n, err
}
