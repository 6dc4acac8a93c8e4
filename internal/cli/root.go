package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/config"
	"ragchat/internal/logger"
)

var (
	cfgFile string
	rootDir string
	verbose bool

	cfg       *config.Config
	appLogger *log.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with a local document folder",
	Long: `ragchat indexes a folder of documents into a vector index and answers
questions about them with a chat model, keeping per-session history.

Required settings (config file or environment):
  DATA_FOLDER      folder with the documents to index
  DB_PATH          directory holding the vector index
  EMBEDDING_MODEL  embedding model name
  MODEL            chat model name (optional)

Example usage:
  ragchat index                    # Index DATA_FOLDER
  ragchat query "vacation policy"  # Show the best matching passages
  ragchat chat --session work      # Start a chat session`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}
		rootDir, err = filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("invalid directory: %w", err)
		}

		// A missing .env file is fine; the environment may already be set.
		_ = godotenv.Load(filepath.Join(rootDir, ".env"))

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.ApplyEnv(os.Getenv)
		cfg.Resolve(rootDir)

		appLogger, logCloser, err = logger.New(logger.Options{
			Level:   cfg.Logging.Level,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the command line and returns the first error.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragchat.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "base directory for relative paths (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// Logger returns the process logger tagged with a component name.
func Logger(component string) *log.Logger {
	if appLogger == nil {
		return logger.Discard()
	}
	return appLogger.With("component", component)
}
