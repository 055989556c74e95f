package dispatcher

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// runTool starts an external downloader, scans its combined output for
// percentage lines, and reports non-zero exit as an error. Output parsing
// is best effort; a line that fails to parse is simply not progress.
func runTool(name string, args []string, parseLine func(string) (float64, bool), progress ProgressFunc) error {
	cmd := exec.Command(name, args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating output pipe for %s: %w", name, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("starting %s: %w", name, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	scanner := bufio.NewScanner(pr)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Tracef("%s: %s", name, line)
		if progress != nil {
			if pct, ok := parseLine(line); ok {
				progress(pct)
			}
		}
	}
	pr.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s exited with error: %w", name, err)
	}
	return nil
}

// scanProgressLines splits on \n or \r so in-place progress updates
// (carriage-return redraws from wget and curl) arrive as separate lines.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Aria2Strategy shells out to aria2c, the segmented multi-connection
// downloader. It supports resume and retries and is the fastest option,
// so the dispatcher tries it first.
type Aria2Strategy struct {
	opts      Options
	available bool
}

var aria2ProgressRe = regexp.MustCompile(`\(([0-9.]+)%\)`)

func NewAria2Strategy(opts Options) *Aria2Strategy {
	_, err := lookPath("aria2c")
	return &Aria2Strategy{opts: opts, available: err == nil}
}

func (s *Aria2Strategy) Name() string    { return "aria2c" }
func (s *Aria2Strategy) Available() bool { return s.available }

func (s *Aria2Strategy) Fetch(url, destPath string, progress ProgressFunc) error {
	if !s.available {
		return ErrNotAvailable
	}
	args := []string{
		"--continue=true",
		fmt.Sprintf("--max-tries=%d", s.opts.MaxRetries),
		fmt.Sprintf("--split=%d", s.opts.Split),
		fmt.Sprintf("--max-connection-per-server=%d", s.opts.Split),
		"--min-split-size=1M",
		fmt.Sprintf("--user-agent=%s", s.opts.UserAgent),
		fmt.Sprintf("--connect-timeout=%d", int(s.opts.ConnectTimeout.Seconds())),
		"--file-allocation=none",
		"--summary-interval=1",
		"--dir", filepath.Dir(destPath),
		"--out", filepath.Base(destPath),
		url,
	}
	return runTool("aria2c", args, ParseAria2Progress, progress)
}

// ParseAria2Progress extracts the percentage from an aria2c summary line,
// e.g. "[#1 SIZE:12MiB/24MiB(50%) CN:4 SPD:2.1MiB]".
func ParseAria2Progress(line string) (float64, bool) {
	m := aria2ProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// WgetStrategy shells out to wget: single-stream, but resumable and retried.
type WgetStrategy struct {
	opts      Options
	available bool
}

var wgetProgressRe = regexp.MustCompile(`(\d+)%`)

func NewWgetStrategy(opts Options) *WgetStrategy {
	_, err := lookPath("wget")
	return &WgetStrategy{opts: opts, available: err == nil}
}

func (s *WgetStrategy) Name() string    { return "wget" }
func (s *WgetStrategy) Available() bool { return s.available }

func (s *WgetStrategy) Fetch(url, destPath string, progress ProgressFunc) error {
	if !s.available {
		return ErrNotAvailable
	}
	args := []string{
		"--continue",
		fmt.Sprintf("--tries=%d", s.opts.MaxRetries),
		fmt.Sprintf("--timeout=%d", int(s.opts.ConnectTimeout.Seconds())),
		fmt.Sprintf("--user-agent=%s", s.opts.UserAgent),
		"--output-document", destPath,
		url,
	}
	return runTool("wget", args, ParseWgetProgress, progress)
}

// ParseWgetProgress extracts the percentage from a wget progress line,
// e.g. "950K .......... 45% 1.2M 3s".
func ParseWgetProgress(line string) (float64, bool) {
	m := wgetProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// CurlStrategy shells out to curl as the final external fallback.
type CurlStrategy struct {
	opts      Options
	available bool
}

var curlProgressRe = regexp.MustCompile(`^\s*(\d+)\s`)

func NewCurlStrategy(opts Options) *CurlStrategy {
	_, err := lookPath("curl")
	return &CurlStrategy{opts: opts, available: err == nil}
}

func (s *CurlStrategy) Name() string    { return "curl" }
func (s *CurlStrategy) Available() bool { return s.available }

func (s *CurlStrategy) Fetch(url, destPath string, progress ProgressFunc) error {
	if !s.available {
		return ErrNotAvailable
	}
	args := []string{
		"--fail",
		"--location",
		"--continue-at", "-",
		"--retry", strconv.Itoa(s.opts.MaxRetries),
		"--connect-timeout", strconv.Itoa(int(s.opts.ConnectTimeout.Seconds())),
		"--user-agent", s.opts.UserAgent,
		"--output", destPath,
		url,
	}
	return runTool("curl", args, ParseCurlProgress, progress)
}

// ParseCurlProgress extracts the total percentage from curl's progress
// table, whose data rows start with the "% Total" column.
func ParseCurlProgress(line string) (float64, bool) {
	m := curlProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct, true
}
