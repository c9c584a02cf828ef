package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/linkmark/linkmark/internal/cli"
	"github.com/linkmark/linkmark/internal/cli/config"
	"github.com/linkmark/linkmark/pkg/audit"
)

var (
	// Set during build time using -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Flags persistent across commands.
	cfgFile     string
	profileName string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "linkmark -b <bookmarks.json>",
	Short: "Checks a bookmark collection for broken links.",
	Long: `linkmark loads every bookmark of an exported collection in an isolated
worker context and reports the ones that are broken: unreachable hosts,
missing pages, certificate problems, authentication walls and timeouts.

It features:
  - Bounded parallel checking with per-request timeouts.
  - Pause and resume: an interrupted run picks up where it left off.
  - Directory and URL filters for skipping archives and private hosts.
  - Optional locale-aware sorting and title normalization of the collection.
  - An interactive Terminal UI (TUI) for monitoring progress.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The first interrupt pauses the run through context cancellation;
		// progress is persisted before the process exits.
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, cmd.Flags())
		if err != nil {
			return err
		}

		// Give the TUI a moment to claim the terminal before output starts.
		if term.IsTerminal(int(os.Stderr.Fd())) && !opts.Verbose && opts.TuiEnabled {
			time.Sleep(100 * time.Millisecond)
		}

		return cli.Run(ctx, opts, logger)
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")
	_ = rootCmd.Execute()
}

func init() {
	// A local .env can supply LINKMARK_* variables during development.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search standard locations like ., $HOME/.config/linkmark/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	rootCmd.PersistentFlags().StringP("bookmarks", "b", "", "Required. Path to the exported bookmarks JSON file.")
	_ = rootCmd.MarkPersistentFlagRequired("bookmarks")

	// Run behavior flags
	rootCmd.Flags().String("state-file", "", "Path of the resume state file (default: next to the bookmarks file)")
	rootCmd.Flags().Bool("clear-state", audit.DefaultClearStateBeforeRun, "Discard any saved progress and start a fresh run")
	rootCmd.Flags().Int("timeout", audit.DefaultRequestTimeoutSeconds, "Per-bookmark request timeout in seconds")
	rootCmd.Flags().Int("timeout-overrule", audit.DefaultTimeoutOverruleCount, "Successful sub-requests needed to pass a bookmark despite a timeout")
	rootCmd.Flags().Int("concurrency", audit.DefaultMaxConcurrentWorkers, "Number of bookmarks checked in parallel")
	rootCmd.Flags().Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")

	// Filtering flags
	rootCmd.Flags().StringSlice("ignored-dirs", audit.DefaultIgnoredDirs(), "Directory name fragments whose bookmarks are skipped (comma-separated)")
	rootCmd.Flags().Bool("ignored-dirs-active", audit.DefaultIgnoredDirsActive, "Enable the ignored-dirs filter")
	rootCmd.Flags().StringSlice("included-dirs", []string{}, "Directory name fragments to check exclusively (comma-separated)")
	rootCmd.Flags().Bool("included-dirs-active", audit.DefaultIncludedDirsActive, "Enable the included-dirs filter")
	rootCmd.Flags().StringSlice("ignored-urls", audit.DefaultIgnoredURLs(), "URL fragments whose bookmarks are skipped (comma-separated)")
	rootCmd.Flags().Bool("ignored-urls-active", audit.DefaultIgnoredURLsActive, "Enable the ignored-urls filter")

	// Collection maintenance flags
	rootCmd.Flags().Bool("favicons", audit.DefaultShowFavicons, "Capture favicons discovered while checking")
	rootCmd.Flags().Bool("lowercase-titles", audit.DefaultToLowercaseTitles, "Rewrite bookmark titles to lowercase")
	rootCmd.Flags().Bool("sort", audit.DefaultSortEnabled, "Sort the collection (folders first, locale-aware) before checking")
	rootCmd.Flags().Bool("sort-unfiled-by-date", audit.DefaultSortUnfiledByDate, "Sort the unfiled folder by date added instead of by title")
	rootCmd.Flags().String("sort-locale", audit.DefaultSortLocale, "BCP 47 locale tag used for sorting (e.g. 'en', 'de')")

	// Output flags
	rootCmd.Flags().String("output-format", string(audit.OutputFormatText), `Final report format ("text", "json", "yaml")`)
}
