package models

import "fmt"

// Category classifies a download and decides which directory it lands in.
type Category string

const (
	CategoryModel      Category = "model"
	CategoryVae        Category = "vae"
	CategoryLora       Category = "lora"
	CategoryEmbedding  Category = "embedding"
	CategoryControlnet Category = "controlnet"
	CategoryUpscale    Category = "upscale"
	CategoryExtension  Category = "extension"
	CategoryUnknown    Category = "unknown"
)

// Categories lists every known category, CategoryUnknown included.
// Destination maps are validated against this list at startup.
var Categories = []Category{
	CategoryModel,
	CategoryVae,
	CategoryLora,
	CategoryEmbedding,
	CategoryControlnet,
	CategoryUpscale,
	CategoryExtension,
	CategoryUnknown,
}

type (
	Config struct {
		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Transport behavior
		UserAgent            string `toml:"UserAgent"`
		ConnectTimeoutSec    int    `toml:"ConnectTimeoutSec"`
		ClientTimeoutSec     int    `toml:"ClientTimeoutSec"`
		MaxRetries           int    `toml:"MaxRetries"`
		Split                int    `toml:"Split"` // aria2c segment count
		DisableExternalTools bool   `toml:"DisableExternalTools"`

		// Parsing / validation
		SupportedHosts []string `toml:"SupportedHosts"`

		// Category name -> directory, overrides the defaults under SavePath.
		Destinations map[string]string `toml:"Destinations"`

		// Behavior. History recording and search indexing are on by
		// default; the Disable toggles opt out.
		SkipConfirmation bool `toml:"SkipConfirmation"`
		DisableHistory   bool `toml:"DisableHistory"`
		DisableIndexing  bool `toml:"DisableIndexing"`
	}

	// DownloadJob is one fully-specified request to fetch one file.
	// Jobs are created by the parser and read-only afterward.
	DownloadJob struct {
		URL              string
		Category         Category
		ExplicitFilename string // from [name.ext] bracket syntax, may be empty
		DestinationDir   string
	}

	// DownloadResult is the outcome of attempting one DownloadJob.
	DownloadResult struct {
		Job              DownloadJob
		Succeeded        bool
		ResolvedFilename string
		BytesWritten     int64
		Error            string // set only when Succeeded is false
	}

	// SessionSummary aggregates the results of one dispatch session.
	SessionSummary struct {
		Downloaded []DownloadJob
		Failed     []DownloadJob
		Results    []DownloadResult
		Total      int
	}

	// ValidationReport is the advisory pre-flight report for a job list.
	// Warnings never block dispatch; errors are advisory unless the
	// caller opts into strict mode.
	ValidationReport struct {
		TotalCount  int
		PerCategory map[Category]int
		Warnings    []string
		Errors      []string
	}

	// HistoryEntry is the persisted record of one fetch, keyed by URL.
	HistoryEntry struct {
		URL          string   `json:"url"`
		Category     Category `json:"category"`
		Filename     string   `json:"filename"`
		Folder       string   `json:"folder"`
		SizeBytes    int64    `json:"sizeBytes"`
		BLAKE3       string   `json:"blake3,omitempty"`
		Timestamp    int64    `json:"timestamp"`
		Status       string   `json:"status"`
		ErrorDetails string   `json:"errorDetails,omitempty"`
	}
)

// History status constants
const (
	StatusPending    = "Pending"
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

// String renders the one-line session summary.
func (s SessionSummary) String() string {
	return fmt.Sprintf("Download completed: %d successful, %d failed", len(s.Downloaded), len(s.Failed))
}
