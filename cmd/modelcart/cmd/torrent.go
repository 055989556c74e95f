package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modelcart/internal/models"
)

// torrentJob holds the parameters for one torrent generation job.
type torrentJob struct {
	SourcePath     string
	Trackers       []string
	OutputDir      string
	Overwrite      bool
	GenerateMagnet bool
	LogFields      log.Fields // context for worker logs
}

func torrentWorker(id int, jobs <-chan torrentJob, wg *sync.WaitGroup, successCounter *atomic.Int64, failureCounter *atomic.Int64) {
	defer wg.Done()
	log.Debugf("Torrent Worker %d starting", id)
	for job := range jobs {
		log.WithFields(job.LogFields).Infof("Worker %d: Processing torrent job for directory %s", id, job.SourcePath)
		err := generateTorrentFile(job.SourcePath, job.Trackers, job.OutputDir, job.Overwrite, job.GenerateMagnet)
		if err != nil {
			log.WithFields(job.LogFields).WithError(err).Errorf("Worker %d: Failed to generate torrent for %s", id, job.SourcePath)
			failureCounter.Add(1)
		} else {
			log.WithFields(job.LogFields).Infof("Worker %d: Successfully generated torrent for %s", id, job.SourcePath)
			successCounter.Add(1)
		}
	}
	log.Debugf("Torrent Worker %d finished", id)
}

var (
	torrentCategories   []string
	announceURLs        []string
	torrentOutputDir    string
	overwriteTorrents   bool
	generateMagnetLinks bool
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for fetched category directories",
	Long: `Generates BitTorrent metainfo (.torrent) files for the category
directories populated by 'fetch'. Requires access to the fetch history
database and the downloaded files themselves. You must specify tracker
announce URLs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(announceURLs) == 0 {
			return errors.New("at least one --announce URL is required")
		}

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			log.Warnf("Invalid concurrency value %d, defaulting to 4", concurrency)
			concurrency = 4
		}

		if globalConfig.SavePath == "" {
			return errors.New("save path is not configured (--save-path or config file)")
		}

		categorySet := make(map[models.Category]struct{})
		for _, c := range torrentCategories {
			categorySet[models.Category(strings.ToLower(c))] = struct{}{}
		}

		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		log.Info("Scanning history database for fetched files...")
		entries, err := db.ListEntries()
		if err != nil {
			return fmt.Errorf("error scanning history database: %w", err)
		}

		var targets []models.HistoryEntry
		for _, entry := range entries {
			if entry.Status != models.StatusDownloaded {
				continue
			}
			if entry.Folder == "" || entry.Filename == "" {
				log.WithField("url", entry.URL).Warn("Skipping entry due to missing Folder or Filename.")
				continue
			}
			if len(categorySet) > 0 {
				if _, wanted := categorySet[entry.Category]; !wanted {
					continue
				}
			}
			targets = append(targets, entry)
		}

		if len(targets) == 0 {
			if len(torrentCategories) > 0 {
				log.Warnf("No fetched files found matching categories: %v", torrentCategories)
			} else {
				log.Info("No fetched files found in the history database.")
			}
			return nil
		}

		log.Infof("Generating torrents for %d fetched file(s) using %d workers...", len(targets), concurrency)

		jobs := make(chan torrentJob, concurrency)
		var wg sync.WaitGroup
		var successCounter atomic.Int64
		var failureCounter atomic.Int64

		for i := 1; i <= concurrency; i++ {
			wg.Add(1)
			go torrentWorker(i, jobs, &wg, &successCounter, &failureCounter)
		}

		// Torrents are built per category directory, so entries sharing a
		// directory collapse into one job.
		queuedJobs := 0
		skippedJobs := 0
		processedDirs := make(map[string]bool)

		for _, entry := range targets {
			dirPath := filepath.Join(globalConfig.SavePath, entry.Folder)

			if processedDirs[dirPath] {
				log.Debugf("Directory %s already queued for torrent generation, skipping duplicate entry (%s)", dirPath, entry.URL)
				skippedJobs++
				continue
			}
			processedDirs[dirPath] = true

			jobs <- torrentJob{
				SourcePath:     dirPath,
				Trackers:       announceURLs,
				OutputDir:      torrentOutputDir,
				Overwrite:      overwriteTorrents,
				GenerateMagnet: generateMagnetLinks,
				LogFields: log.Fields{
					"category":  entry.Category,
					"directory": dirPath,
				},
			}
			queuedJobs++
		}

		close(jobs)
		log.Infof("Queued %d unique directory jobs for torrent generation (%d entries skipped as duplicates). Waiting for workers...", queuedJobs, skippedJobs)

		wg.Wait()

		successCount := successCounter.Load()
		failCount := failureCounter.Load()

		log.Infof("Torrent generation complete. Success: %d, Failed: %d", successCount, failCount)
		if failCount > 0 {
			return fmt.Errorf("%d torrents failed to generate", failCount)
		}
		return nil
	},
}

// generateTorrentFile creates a .torrent file for the given source directory.
// It can optionally also create a text file containing the magnet link.
func generateTorrentFile(sourcePath string, trackers []string, outputDir string, overwrite bool, generateMagnetLinks bool) error {
	stat, err := os.Stat(sourcePath)
	if os.IsNotExist(err) {
		log.WithField("path", sourcePath).Error("Source path not found for torrent generation")
		return fmt.Errorf("source path does not exist: %s", sourcePath)
	} else if err != nil {
		return fmt.Errorf("error stating source path %s: %w", sourcePath, err)
	} else if !stat.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", sourcePath)
	}

	// Use the directory name for the torrent file
	torrentFileName := fmt.Sprintf("%s.torrent", filepath.Base(sourcePath))
	var outPath string
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("error creating output directory %s: %w", outputDir, err)
		}
		outPath = filepath.Join(outputDir, torrentFileName)
	} else {
		// Place the torrent file inside the source directory
		outPath = filepath.Join(sourcePath, torrentFileName)
	}

	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			return nil
		} else if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", outPath).Warn("Could not check status of potential existing torrent file, attempting to overwrite")
		}
	} else {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Warn("Overwriting existing torrent file")
		}
	}

	mi := metainfo.MetaInfo{
		AnnounceList: make([][]string, len(trackers)),
	}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}

	mi.CreatedBy = "modelcart"

	const pieceLength = 512 * 1024
	info := metainfo.Info{PieceLength: pieceLength}

	log.WithField("directory", sourcePath).Debug("Building torrent info...")
	err = info.BuildFromFilePath(sourcePath)
	if err != nil {
		return fmt.Errorf("error building torrent info from path %s: %w", sourcePath, err)
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	defer f.Close()

	err = mi.Write(f)
	if err != nil {
		return fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}

	log.WithField("path", outPath).Info("Successfully generated torrent file")

	if generateMagnetLinks {
		infoHash := mi.HashInfoBytes()
		magnetParts := []string{
			fmt.Sprintf("magnet:?xt=urn:btih:%s", infoHash.HexString()),
			fmt.Sprintf("dn=%s", url.QueryEscape(stat.Name())),
		}
		for _, tracker := range trackers {
			magnetParts = append(magnetParts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
		}
		magnetURI := strings.Join(magnetParts, "&")
		magnetFileName := fmt.Sprintf("%s-magnet.txt", strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath)))
		magnetOutPath := filepath.Join(filepath.Dir(outPath), magnetFileName)

		if err := writeMagnetFile(magnetOutPath, magnetURI); err != nil {
			// Log but don't fail the whole torrent generation for the magnet link
			log.WithError(err).WithField("path", magnetOutPath).Error("Failed to write magnet link file")
		} else {
			log.WithField("path", magnetOutPath).Info("Successfully generated magnet link file")
		}
	}

	return nil
}

// writeMagnetFile writes the magnet URI string to the specified file path.
func writeMagnetFile(filePath string, magnetURI string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("error creating magnet file %s: %w", filePath, err)
	}
	defer f.Close()

	_, err = f.WriteString(magnetURI)
	if err != nil {
		return fmt.Errorf("error writing magnet file %s: %w", filePath, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	torrentCmd.Flags().StringSliceVar(&torrentCategories, "category", []string{}, "Category name(s) to generate torrents for (comma-separated or repeated). Default: all fetched categories.")
	torrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save generated .torrent files (default: inside each category directory)")
	torrentCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite existing .torrent files")
	torrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Generate a .txt file containing the magnet link alongside each .torrent file")
	torrentCmd.Flags().IntP("concurrency", "c", 4, "Number of concurrent torrent generation workers")
}
