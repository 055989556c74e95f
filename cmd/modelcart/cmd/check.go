package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modelcart/internal/models"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [REQUEST_FILE]",
	Short: "Parse and validate a link list without downloading anything",
	Long: `Runs the same parsing and validation as 'fetch' but stops before any
download. Prints the jobs that would run, per-category counts, and any
validation warnings or errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := readRequestText(args)
	if err != nil {
		return err
	}

	p, err := buildParser()
	if err != nil {
		return err
	}

	jobs, dropped := p.Parse(text)
	if len(jobs) == 0 && len(dropped) == 0 {
		log.Info("No download links found in the request text.")
		return nil
	}

	report := p.Validate(jobs, dropped)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Category\tFilename\tDestination\tURL")
	fmt.Fprintln(tw, "--------\t--------\t-----------\t---")
	for _, job := range jobs {
		name := job.ExplicitFilename
		if name == "" {
			name = "(resolved at download time)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", job.Category, name, job.DestinationDir, job.URL)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for check")
	}

	log.Infof("Parsed %d download job(s).", report.TotalCount)
	for _, cat := range models.Categories {
		if n := report.PerCategory[cat]; n > 0 {
			log.Infof("  %-12s %d", cat, n)
		}
	}
	for _, w := range report.Warnings {
		log.Warn(w)
	}
	for _, e := range report.Errors {
		log.Error(e)
	}

	if len(report.Errors) > 0 {
		return fmt.Errorf("validation found %d error(s)", len(report.Errors))
	}
	return nil
}
