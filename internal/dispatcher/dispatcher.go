// Package dispatcher executes download jobs sequentially, trying a fixed
// chain of transport strategies per job until one succeeds.
package dispatcher

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go-modelcart/internal/helpers"
	"go-modelcart/internal/models"

	log "github.com/sirupsen/logrus"
)

// Dispatcher errors
var (
	ErrNoFilename   = errors.New("no usable filename could be resolved")
	ErrAllFailed    = errors.New("all download strategies failed")
	ErrFileSystem   = errors.New("filesystem error")
	ErrMissingFile  = errors.New("strategy reported success but output file does not exist")
	ErrHTTPStatus   = errors.New("unexpected HTTP status code")
	ErrNotAvailable = errors.New("strategy not available on this system")
)

// ProgressFunc receives percentage-complete values in [0, 100].
type ProgressFunc func(pct float64)

// SessionProgressFunc receives per-job progress during a dispatch session.
type SessionProgressFunc func(job models.DownloadJob, pct float64)

// Strategy is one transport mechanism. Fetch must either download url fully
// to destPath and return nil, or return an error; progress may be nil.
type Strategy interface {
	Name() string
	Available() bool
	Fetch(url, destPath string, progress ProgressFunc) error
}

// Options configures the dispatcher and its strategy chain.
type Options struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ClientTimeout  time.Duration // total timeout for the native HTTP strategy
	MaxRetries     int           // retry count handed to external tools
	Split          int           // aria2c segment count
	NativeOnly     bool          // skip external tools entirely
}

// Dispatcher runs download jobs one at a time through a strategy chain.
type Dispatcher struct {
	strategies []Strategy
	client     *http.Client // used for filename resolution preflight
	userAgent  string
}

// New builds a Dispatcher with the standard chain: aria2c (segmented,
// fastest, tried first when installed), then wget, then curl, then the
// built-in HTTP client as the guaranteed last resort.
func New(opts Options) *Dispatcher {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = 15 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Split <= 0 {
		opts.Split = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}

	client := &http.Client{Timeout: opts.ClientTimeout}

	var strategies []Strategy
	if !opts.NativeOnly {
		strategies = append(strategies,
			NewAria2Strategy(opts),
			NewWgetStrategy(opts),
			NewCurlStrategy(opts),
		)
	}
	strategies = append(strategies, NewNativeStrategy(client, opts.UserAgent))

	return &Dispatcher{
		strategies: strategies,
		client:     client,
		userAgent:  opts.UserAgent,
	}
}

// Run processes jobs strictly in list order, never skipping or reordering,
// and never aborting the session because one job failed. The progress
// callback is optional; within one job its values are non-decreasing.
func (d *Dispatcher) Run(jobs []models.DownloadJob, progress SessionProgressFunc) models.SessionSummary {
	summary := models.SessionSummary{Total: len(jobs)}

	for i, job := range jobs {
		log.Infof("Job %d/%d: %s", i+1, len(jobs), job.URL)

		var perJob ProgressFunc
		if progress != nil {
			j := job
			perJob = func(pct float64) { progress(j, pct) }
		}

		result := d.runJob(job, perJob)
		summary.Results = append(summary.Results, result)
		if result.Succeeded {
			summary.Downloaded = append(summary.Downloaded, job)
		} else {
			summary.Failed = append(summary.Failed, job)
		}
	}

	log.Info(summary.String())
	return summary
}

// runJob executes the full strategy chain for a single job.
func (d *Dispatcher) runJob(job models.DownloadJob, progress ProgressFunc) models.DownloadResult {
	result := models.DownloadResult{Job: job}

	// Destination creation is idempotent; jobs sharing a directory must
	// not fail on the second attempt.
	if !helpers.CheckAndMakeDir(job.DestinationDir) {
		result.Error = fmt.Sprintf("%v: creating %s", ErrFileSystem, job.DestinationDir)
		return result
	}

	filename, err := d.resolveFilename(job)
	if err != nil {
		log.WithError(err).Errorf("Cannot resolve a filename for %s", job.URL)
		result.Error = err.Error()
		return result
	}
	result.ResolvedFilename = filename
	destPath := filepath.Join(job.DestinationDir, filename)

	var lastErr error = ErrAllFailed
	for _, strategy := range d.strategies {
		if !strategy.Available() {
			log.Debugf("Strategy %s unavailable, skipping", strategy.Name())
			continue
		}

		log.Debugf("Trying strategy %s for %s", strategy.Name(), job.URL)
		err := attempt(strategy, job.URL, destPath, monotonic(progress))
		if err == nil {
			if _, statErr := os.Stat(destPath); statErr != nil {
				err = fmt.Errorf("%w: %s", ErrMissingFile, destPath)
			}
		}
		if err == nil {
			if info, statErr := os.Stat(destPath); statErr == nil {
				result.BytesWritten = info.Size()
			}
			result.Succeeded = true
			log.Infof("Downloaded %s via %s (%s)", filename, strategy.Name(), helpers.BytesToSize(uint64(result.BytesWritten)))
			return result
		}

		log.WithError(err).Warnf("Strategy %s failed for %s", strategy.Name(), job.URL)
		lastErr = err
	}

	result.Error = lastErr.Error()
	return result
}

// attempt runs one strategy, containing panics so a misbehaving strategy
// can never take down the session.
func attempt(s Strategy, url, destPath string, progress ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Fetch(url, destPath, progress)
}

// monotonic wraps a progress callback so reported percentages are clamped
// to [0, 100] and never decrease within one strategy attempt.
func monotonic(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return nil
	}
	last := 0.0
	return func(pct float64) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct < last {
			return
		}
		last = pct
		progress(pct)
	}
}

// resolveFilename applies the resolution order once per job: the explicit
// bracket filename, then a Content-Disposition filename from a preflight
// request, then the last URL path segment.
func (d *Dispatcher) resolveFilename(job models.DownloadJob) (string, error) {
	if job.ExplicitFilename != "" {
		return job.ExplicitFilename, nil
	}

	if name := d.headerFilename(job.URL); name != "" {
		log.Debugf("Resolved filename from Content-Disposition: %s", name)
		return name, nil
	}

	u, err := url.Parse(job.URL)
	if err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoFilename, job.URL)
}

// headerFilename asks the server for a Content-Disposition filename via a
// HEAD request. Any failure just means falling through to the URL path.
func (d *Dispatcher) headerFilename(rawURL string) string {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		log.WithError(err).Debugf("Filename preflight failed for %s", rawURL)
		return ""
	}
	defer resp.Body.Close()

	cd := resp.Header.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil || params["filename"] == "" {
		log.Debugf("Content-Disposition header carried no filename: %s", cd)
		return ""
	}
	// Strip any path component a hostile server might send.
	return filepath.Base(params["filename"])
}
