package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modelcart/internal/config"
	"go-modelcart/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// savePathFlag holds the value of the --save-path flag
var savePathFlag string

// Persistent logging flags
var logLevel string
var logFormat string // "text" or "json"

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modelcart",
	Short: "Batch-download model files from pasted link lists",
	Long: `Modelcart turns pasted text full of model links into a download session.
Lines are tagged with category markers (#model, $vae, ...) and each file
is fetched into the matching directory under the save path.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags that apply to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	// Hook to configure logging before any command runs
	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadGlobalConfig attempts to load the configuration and applies flag
// overrides. A missing config file is only a warning so that commands can run
// from flags and defaults alone.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		log.WithError(err).Warnf("Failed to load configuration from %s, using defaults", cfgFile)
		globalConfig = config.DefaultConfig()
	}

	// Override SavePath if flag was used
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}

	return nil
}

// databasePath resolves the history database location, defaulting to a
// directory next to the downloads.
func databasePath() string {
	if globalConfig.DatabasePath != "" {
		return globalConfig.DatabasePath
	}
	if globalConfig.SavePath != "" {
		return filepath.Join(globalConfig.SavePath, "modelcart_db")
	}
	return "modelcart_db"
}

// indexPath resolves the bleve index location.
func indexPath() string {
	if globalConfig.BleveIndexPath != "" {
		return globalConfig.BleveIndexPath
	}
	if globalConfig.SavePath != "" {
		return filepath.Join(globalConfig.SavePath, "modelcart.bleve")
	}
	return "modelcart.bleve"
}
