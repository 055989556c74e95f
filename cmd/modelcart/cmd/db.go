package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modelcart/internal/database"
	"go-modelcart/internal/helpers"
	"go-modelcart/internal/models"
)

// dbCmd represents the base command for history database operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the fetch history database",
	Long:  `Perform operations like viewing or verifying entries in the fetch history database.`,
	// No Run function for the base db command itself
}

// dbViewCmd represents the command to view history entries
var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View entries stored in the history database",
	Long:  `Lists every fetch recorded in the history database.`,
	RunE:  runDbView,
}

// dbVerifyCmd represents the command to verify history entries against the filesystem
var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify history entries against the filesystem",
	Long: `Checks that every successfully fetched file still exists at its recorded
location and, when a checksum was stored, that it still matches.`,
	RunE: runDbVerify,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(dbVerifyCmd)

	dbVerifyCmd.Flags().Bool("check-hash", true, "Verify BLAKE3 checksums for existing files")
}

// openHistoryDB opens the history database at its configured location.
func openHistoryDB() (*database.DB, error) {
	db, err := database.Open(databasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", databasePath(), err)
	}
	return db, nil
}

func runDbView(cmd *cobra.Command, args []string) error {
	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListEntries()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Category\tFilename\tFolder\tSize\tStatus\tFetched\tURL")
	fmt.Fprintln(tw, "--------\t--------\t------\t----\t------\t-------\t---")

	for _, entry := range entries {
		fetched := ""
		if entry.Timestamp > 0 {
			fetched = time.Unix(entry.Timestamp, 0).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Category,
			entry.Filename,
			entry.Folder,
			helpers.BytesToSize(uint64(entry.SizeBytes)),
			entry.Status,
			fetched,
			entry.URL,
		)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", len(entries))
	return nil
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	checkHashFlag, _ := cmd.Flags().GetBool("check-hash")

	if globalConfig.SavePath == "" {
		return fmt.Errorf("save path is not configured (--save-path or config file)")
	}

	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListEntries()
	if err != nil {
		return err
	}

	var total, ok, missing, mismatch int
	for _, entry := range entries {
		if entry.Status != models.StatusDownloaded {
			continue
		}
		total++

		expectedPath := filepath.Join(globalConfig.SavePath, entry.Folder, entry.Filename)
		if _, statErr := os.Stat(expectedPath); statErr != nil {
			if os.IsNotExist(statErr) {
				missing++
				log.WithField("path", expectedPath).Error("[MISSING] File not found.")
			} else {
				log.WithError(statErr).Errorf("[ERROR] Could not check file status for %s", expectedPath)
			}
			continue
		}

		if checkHashFlag && entry.BLAKE3 != "" {
			if helpers.CheckBLAKE3(expectedPath, entry.BLAKE3) {
				ok++
				log.WithField("path", expectedPath).Info("[OK] File exists and checksum matches.")
			} else {
				mismatch++
				log.WithField("path", expectedPath).Warn("[MISMATCH] File exists but checksum differs.")
			}
		} else {
			ok++
			log.WithField("path", expectedPath).Info("[FOUND] File exists (checksum check skipped).")
		}
	}

	log.Infof("Verification summary: Total=%d, OK=%d, Missing=%d, Mismatch=%d",
		total, ok, missing, mismatch)
	if missing > 0 || mismatch > 0 {
		return fmt.Errorf("%d file(s) missing or mismatched", missing+mismatch)
	}
	return nil
}
