package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modelcart/index"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the index of fetched files",
	Long: `Searches the full-text index built during 'fetch' (on unless
DisableIndexing is set). The query uses Bleve query-string syntax, so field
searches like '+category:lora' or '+host:civitai.com safetensors' work.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Bool("rebuild", false, "Rebuild the index from the history database before searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	rebuild, _ := cmd.Flags().GetBool("rebuild")
	if rebuild {
		if err := rebuildIndex(); err != nil {
			return err
		}
	}

	idx, err := index.OpenOrCreateIndex(indexPath())
	if err != nil {
		return fmt.Errorf("failed to open search index at %s: %w", indexPath(), err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.WithError(err).Error("Error closing search index")
		}
	}()

	result, err := index.SearchIndex(idx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if result.Total == 0 {
		log.Infof("No matches for query '%s'.", query)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tCategory\tFilename\tURL")
	fmt.Fprintln(tw, "-----\t--------\t--------\t---")
	for _, hit := range result.Hits {
		category, _ := hit.Fields["category"].(string)
		filename, _ := hit.Fields["filename"].(string)
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", hit.Score, category, filename, hit.ID)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for search")
	}

	log.Infof("Found %d match(es) for query '%s'.", result.Total, query)
	return nil
}

// rebuildIndex deletes the index and repopulates it from the history database.
func rebuildIndex() error {
	log.Info("Rebuilding search index from history database...")
	if err := index.DeleteIndex(indexPath()); err != nil {
		return fmt.Errorf("failed to delete existing index: %w", err)
	}

	idx, err := index.OpenOrCreateIndex(indexPath())
	if err != nil {
		return fmt.Errorf("failed to create search index at %s: %w", indexPath(), err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.WithError(err).Error("Error closing search index")
		}
	}()

	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListEntries()
	if err != nil {
		return err
	}

	indexed := 0
	for _, entry := range entries {
		if err := index.IndexItem(idx, index.FromHistoryEntry(entry)); err != nil {
			log.WithError(err).Warnf("Failed to index %s", entry.URL)
			continue
		}
		indexed++
	}
	log.Infof("Indexed %d history entries.", indexed)
	return nil
}
