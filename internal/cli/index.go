package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragchat/internal/adapter/fs"
	"ragchat/internal/adapter/store"
	"ragchat/internal/domain"
)

var (
	indexRebuild bool
	indexWatch   bool
	indexWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents for retrieval",
	Long: `Load, chunk and embed every supported document under DATA_FOLDER (or
the given path) and store the vectors under DB_PATH.

Re-running is cheap: chunks already in the index are skipped.

Examples:
  ragchat index                  # Index DATA_FOLDER
  ragchat index ./handbook       # Index a specific folder
  ragchat index --rebuild        # Drop the index and start over
  ragchat index --watch          # Keep the index in sync with the folder`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the index before ingesting")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "watch the folder and re-index changed files")
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 0, "parallel file workers (default from config)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if len(args) > 0 {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		cfg.DataFolder = path
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateDataFolder(); err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	index, err := openIndex(ctx, cfg, embedder)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	bolt, isBolt := index.(*store.BoltIndex)
	if isBolt && !indexRebuild {
		res, err := bolt.CheckMigration(cfg)
		if err != nil {
			return fmt.Errorf("failed to check migration: %w", err)
		}
		if res.NeedsRebuild {
			return &domain.ConfigError{Key: "DB_PATH", Reason: res.Reason + "; run with --rebuild to clear it"}
		}
	}
	if indexRebuild {
		fmt.Fprintln(out, "Clearing existing index...")
		if err := clearIndex(index); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
	)
	progress := func(path string, done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		_ = bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	ingest, walker, err := newIngest(cfg, embedder, index, indexWorkers, progress)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Scanning %s...\n", cfg.DataFolder)
	report, err := ingest.Ingest(ctx, cfg.DataFolder)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if isBolt {
		if err := bolt.Migrate(cfg); err != nil {
			return fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Files scanned:   %d\n", report.FilesScanned)
	fmt.Fprintf(out, "  Files loaded:    %d\n", report.DocumentsLoaded)
	fmt.Fprintf(out, "  Files skipped:   %d (unsupported)\n", report.FilesSkipped)
	fmt.Fprintf(out, "  Files failed:    %d\n", report.FilesFailed)
	fmt.Fprintf(out, "  Chunks produced: %d\n", report.ChunksProduced)
	fmt.Fprintf(out, "  Duplicates:      %d\n", report.ChunksDeduplicated)
	fmt.Fprintf(out, "  Entries stored:  %d\n", report.EntriesStored)
	fmt.Fprintf(out, "  Took:            %s\n", formatDuration(report.Duration))

	if len(report.Failures) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(out, "  - %s: %s\n", f.Path, f.Err)
		}
	}

	fmt.Fprintf(out, "\nIndex stored at: %s (%d entries)\n", cfg.DBPath, index.Count())

	if !indexWatch {
		return nil
	}
	watcher := fs.NewWatcher(cfg.DataFolder, walker, fs.DefaultDebounce, Logger("watch"))
	return ingest.Watch(ctx, cfg.DataFolder, watcher)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
