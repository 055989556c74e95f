package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-modelcart/index"
	"go-modelcart/internal/config"
	"go-modelcart/internal/dispatcher"
	"go-modelcart/internal/helpers"
	"go-modelcart/internal/models"
	"go-modelcart/internal/parser"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [REQUEST_FILE]",
	Short: "Parse a link list and download every file in it",
	Long: `Reads request text from a file (or stdin when no file is given), parses
the tagged links into download jobs, and fetches each file into the
directory for its category. Lines switch categories with markers like
#model, $vae or $lora; '[name.ext]' on a line pins the saved filename.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	fetchCmd.Flags().Bool("strict", false, "Abort before downloading if validation finds errors")
	fetchCmd.Flags().Bool("native-only", false, "Use only the built-in HTTP client, never aria2c/wget/curl")
	fetchCmd.Flags().Bool("no-history", false, "Do not record results in the history database")

	if err := viper.BindPFlag("fetch.yes", fetchCmd.Flags().Lookup("yes")); err != nil {
		log.WithError(err).Warn("Failed to bind fetch.yes flag")
	}
	if err := viper.BindPFlag("fetch.strict", fetchCmd.Flags().Lookup("strict")); err != nil {
		log.WithError(err).Warn("Failed to bind fetch.strict flag")
	}
	if err := viper.BindPFlag("fetch.native_only", fetchCmd.Flags().Lookup("native-only")); err != nil {
		log.WithError(err).Warn("Failed to bind fetch.native_only flag")
	}
}

// readRequestText reads the raw request text from the file argument or stdin.
func readRequestText(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("error reading request file %s: %w", args[0], err)
		}
		return string(data), nil
	}

	log.Info("Reading request text from stdin...")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("error reading request text from stdin: %w", err)
	}
	return string(data), nil
}

// buildParser wires the tag vocabulary and destination mapping into a parser.
// A broken destination mapping is fatal here, before anything is fetched.
func buildParser() (*parser.Parser, error) {
	destinations, err := config.BuildDestinations(globalConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid destination configuration: %w", err)
	}
	return parser.New(parser.DefaultTagVocabulary(), destinations, globalConfig.SupportedHosts)
}

// reportValidation logs the advisory validation findings and returns an error
// only when strict mode is on and errors were found.
func reportValidation(report models.ValidationReport, strict bool) error {
	for _, w := range report.Warnings {
		log.Warn(w)
	}
	for _, e := range report.Errors {
		log.Error(e)
	}
	if strict && len(report.Errors) > 0 {
		return fmt.Errorf("aborting: validation found %d error(s) and --strict is set", len(report.Errors))
	}
	return nil
}

// confirmSession prints a per-category summary and asks the user to proceed.
func confirmSession(jobs []models.DownloadJob, report models.ValidationReport, skip bool) bool {
	log.Infof("Parsed %d download job(s):", report.TotalCount)
	for _, cat := range models.Categories {
		if n := report.PerCategory[cat]; n > 0 {
			log.Infof("  %-12s %d", cat, n)
		}
	}

	if skip {
		log.Debug("Skipping confirmation prompt.")
		return true
	}

	fmt.Printf("Proceed with download? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	confirm, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(confirm)) != "y" {
		log.Info("Download cancelled by user.")
		return false
	}
	return true
}

func runFetch(cmd *cobra.Command, args []string) error {
	text, err := readRequestText(args)
	if err != nil {
		return err
	}

	p, err := buildParser()
	if err != nil {
		// Broken category/destination wiring is a setup problem, not an
		// input problem. Fail before touching the filesystem.
		return err
	}

	jobs, dropped := p.Parse(text)
	if len(jobs) == 0 && len(dropped) == 0 {
		log.Info("No download links found in the request text.")
		return nil
	}

	report := p.Validate(jobs, dropped)
	strict, _ := cmd.Flags().GetBool("strict")
	if err := reportValidation(report, strict); err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Info("No valid download links found in the request text.")
		return nil
	}

	skipConfirm, _ := cmd.Flags().GetBool("yes")
	if !confirmSession(jobs, report, skipConfirm || globalConfig.SkipConfirmation) {
		return nil
	}

	nativeOnly, _ := cmd.Flags().GetBool("native-only")
	d := dispatcher.New(dispatcher.Options{
		UserAgent:      globalConfig.UserAgent,
		ConnectTimeout: time.Duration(globalConfig.ConnectTimeoutSec) * time.Second,
		ClientTimeout:  time.Duration(globalConfig.ClientTimeoutSec) * time.Second,
		MaxRetries:     globalConfig.MaxRetries,
		Split:          globalConfig.Split,
		NativeOnly:     nativeOnly || globalConfig.DisableExternalTools,
	})

	// Live single-line progress display.
	writer := uilive.New()
	writer.Start()
	progress := func(job models.DownloadJob, pct float64) {
		name := job.ExplicitFilename
		if name == "" {
			name = job.URL
		}
		fmt.Fprintf(writer, "Downloading %s [%s]: %.1f%%\n", name, job.Category, pct)
	}

	summary := d.Run(jobs, progress)
	writer.Stop()

	noHistory, _ := cmd.Flags().GetBool("no-history")
	if !noHistory && !globalConfig.DisableHistory {
		if err := recordSession(summary); err != nil {
			log.WithError(err).Error("Failed to record session in history database")
		}
	}

	fmt.Println(summary.String())
	return nil
}

// recordSession persists every result to the history database and, when
// enabled, the search index. Checksums are computed for successful downloads.
func recordSession(summary models.SessionSummary) error {
	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Error closing history database")
		}
	}()

	var idx bleve.Index
	if !globalConfig.DisableIndexing {
		idx, err = index.OpenOrCreateIndex(indexPath())
		if err != nil {
			log.WithError(err).Warn("Failed to open search index, skipping indexing")
			idx = nil
		} else {
			defer func() {
				if err := idx.Close(); err != nil {
					log.WithError(err).Error("Error closing search index")
				}
			}()
		}
	}

	for _, result := range summary.Results {
		entry := models.HistoryEntry{
			URL:       result.Job.URL,
			Category:  result.Job.Category,
			Filename:  result.ResolvedFilename,
			Folder:    filepath.Base(result.Job.DestinationDir),
			SizeBytes: result.BytesWritten,
			Timestamp: time.Now().Unix(),
		}

		if result.Succeeded {
			entry.Status = models.StatusDownloaded
			fullPath := filepath.Join(result.Job.DestinationDir, result.ResolvedFilename)
			sum, hashErr := helpers.FileBLAKE3(fullPath)
			if hashErr != nil {
				log.WithError(hashErr).Warnf("Failed to hash %s", fullPath)
			} else {
				entry.BLAKE3 = sum
			}
		} else {
			entry.Status = models.StatusError
			entry.ErrorDetails = result.Error
		}

		if err := db.PutEntry(entry); err != nil {
			log.WithError(err).Errorf("Failed to store history entry for %s", entry.URL)
			continue
		}

		if idx != nil && result.Succeeded {
			if err := index.IndexItem(idx, index.FromHistoryEntry(entry)); err != nil {
				log.WithError(err).Warnf("Failed to index %s", entry.URL)
			}
		}
	}

	return nil
}
