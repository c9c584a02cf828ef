// Package config loads and validates the linkmark configuration from its
// layered sources: built-in defaults, the config file, an optional named
// profile, environment variables, and command-line flags, in ascending
// priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/linkmark/linkmark/pkg/audit"
	"github.com/linkmark/linkmark/pkg/audit/store"
)

const (
	EnvPrefix         = "LINKMARK"
	DefaultConfigName = "linkmark"
)

// flagBindings maps viper configuration keys to the flag names defined in
// the root command. Flags always win over file, profile and environment.
var flagBindings = map[string]string{
	"bookmarks":             "bookmarks",
	"stateFile":             "state-file",
	"requestTimeoutSeconds": "timeout",
	"timeoutOverruleCount":  "timeout-overrule",
	"maxConcurrentWorkers":  "concurrency",
	"clearStateBeforeRun":   "clear-state",
	"ignoredDirs":           "ignored-dirs",
	"ignoredDirsActive":     "ignored-dirs-active",
	"includedDirs":          "included-dirs",
	"includedDirsActive":    "included-dirs-active",
	"ignoredUrls":           "ignored-urls",
	"ignoredUrlsActive":     "ignored-urls-active",
	"showFavicons":          "favicons",
	"toLowercaseTitles":     "lowercase-titles",
	"sortEnabled":           "sort",
	"sortUnfiledByDate":     "sort-unfiled-by-date",
	"sortLocale":            "sort-locale",
	"outputFormat":          "output-format",
	"verbose":               "verbose",
}

// LoadAndValidate merges configuration from all sources, validates the
// result, derives dependent values, and sets up the final logger. Interface
// dependencies (the bookmark store, the state store, the context manager)
// are injected by the caller afterwards.
func LoadAndValidate(cfgFile, profileName, appVersion string, flags *pflag.FlagSet) (audit.Options, *slog.Logger, error) {
	var opts audit.Options
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return opts, tempLogger, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			return opts, tempLogger, fmt.Errorf("error reading config file '%s': %w", used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			return opts, tempLogger, fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
		}
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			return opts, tempLogger, fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flagName := range flagBindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
		}
	}

	opts.AppVersion = appVersion

	if err := v.Unmarshal(&opts); err != nil {
		return opts, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Boolean flags bound through viper lose against non-default file or env
	// values; explicit flags must always win.
	if flags.Changed("verbose") {
		opts.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("clear-state") {
		opts.ClearStateBeforeRun, _ = flags.GetBool("clear-state")
	}
	if flags.Changed("favicons") {
		opts.ShowFavicons, _ = flags.GetBool("favicons")
	}
	if flags.Changed("lowercase-titles") {
		opts.ToLowercaseTitles, _ = flags.GetBool("lowercase-titles")
	}
	if flags.Changed("sort") {
		opts.SortEnabled, _ = flags.GetBool("sort")
	}
	if flags.Changed("sort-unfiled-by-date") {
		opts.SortUnfiledByDate, _ = flags.GetBool("sort-unfiled-by-date")
	}
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			opts.TuiEnabled = false
		}
	}

	// Filter lists accept comma-joined values from env vars and config
	// entries alike.
	opts.IgnoredDirs = splitList(opts.IgnoredDirs)
	opts.IncludedDirs = splitList(opts.IncludedDirs)
	opts.IgnoredURLs = splitList(opts.IgnoredURLs)

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Bool("verbose", opts.Verbose),
		slog.String("logLevel", logLevel.String()))

	return opts, logger, nil
}

// setDefaults establishes the default values for configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bookmarks", "")
	v.SetDefault("stateFile", "")

	v.SetDefault("requestTimeoutSeconds", audit.DefaultRequestTimeoutSeconds)
	v.SetDefault("timeoutOverruleCount", audit.DefaultTimeoutOverruleCount)
	v.SetDefault("maxConcurrentWorkers", audit.DefaultMaxConcurrentWorkers)
	v.SetDefault("clearStateBeforeRun", audit.DefaultClearStateBeforeRun)

	v.SetDefault("ignoredDirs", audit.DefaultIgnoredDirs())
	v.SetDefault("ignoredDirsActive", audit.DefaultIgnoredDirsActive)
	v.SetDefault("includedDirs", []string{})
	v.SetDefault("includedDirsActive", audit.DefaultIncludedDirsActive)
	v.SetDefault("ignoredUrls", audit.DefaultIgnoredURLs())
	v.SetDefault("ignoredUrlsActive", audit.DefaultIgnoredURLsActive)

	v.SetDefault("showFavicons", audit.DefaultShowFavicons)
	v.SetDefault("toLowercaseTitles", audit.DefaultToLowercaseTitles)
	v.SetDefault("sortEnabled", audit.DefaultSortEnabled)
	v.SetDefault("sortUnfiledByDate", audit.DefaultSortUnfiledByDate)
	v.SetDefault("sortLocale", audit.DefaultSortLocale)

	v.SetDefault("verbose", false)
	v.SetDefault("tuiEnabled", true)
	v.SetDefault("outputFormat", string(audit.OutputFormatText))
}

// splitList splits comma-joined entries and trims whitespace, dropping the
// empties that stray commas produce.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func isValidEnumValue[T ~string](value T, allowed []T) bool {
	return slices.Contains(allowed, value)
}

// validateAndDeriveOptions performs semantic validation on the populated
// Options and calculates derived fields. Interface dependencies are not
// injected here; the caller wires them after loading.
func validateAndDeriveOptions(opts *audit.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	if opts.BookmarksPath == "" {
		err := fmt.Errorf("%w: bookmarks file is required (-b, --bookmarks)", audit.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "bookmarks"))
		return err
	}
	absBookmarks, err := filepath.Abs(opts.BookmarksPath)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute bookmarks path '%s': %w", audit.ErrConfigValidation, opts.BookmarksPath, err)
		logger.Error(err.Error(), slog.String("key", "bookmarks"))
		return err
	}
	opts.BookmarksPath = absBookmarks
	info, err := os.Stat(opts.BookmarksPath)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: bookmarks file '%s' does not exist", audit.ErrConfigValidation, opts.BookmarksPath)
		} else {
			err = fmt.Errorf("%w: cannot access bookmarks file '%s': %w", audit.ErrConfigValidation, opts.BookmarksPath, err)
		}
		logger.Error(err.Error(), slog.String("key", "bookmarks"))
		return err
	}
	if info.IsDir() {
		err = fmt.Errorf("%w: bookmarks path '%s' is a directory, not a file", audit.ErrConfigValidation, opts.BookmarksPath)
		logger.Error(err.Error(), slog.String("key", "bookmarks"))
		return err
	}

	if opts.StatePath == "" {
		opts.StatePath = filepath.Join(filepath.Dir(opts.BookmarksPath), store.StateFileName)
	} else if abs, absErr := filepath.Abs(opts.StatePath); absErr == nil {
		opts.StatePath = abs
	}

	if opts.RequestTimeoutSeconds <= 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'requestTimeoutSeconds' (flag --timeout). Must be > 0", audit.ErrConfigValidation, opts.RequestTimeoutSeconds)
		logger.Error(err.Error(), slog.String("key", "requestTimeoutSeconds"), slog.Int("value", opts.RequestTimeoutSeconds))
		return err
	}
	if opts.TimeoutOverruleCount < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'timeoutOverruleCount' (flag --timeout-overrule). Must be >= 0", audit.ErrConfigValidation, opts.TimeoutOverruleCount)
		logger.Error(err.Error(), slog.String("key", "timeoutOverruleCount"), slog.Int("value", opts.TimeoutOverruleCount))
		return err
	}
	if opts.MaxConcurrentWorkers <= 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'maxConcurrentWorkers' (flag --concurrency). Must be > 0", audit.ErrConfigValidation, opts.MaxConcurrentWorkers)
		logger.Error(err.Error(), slog.String("key", "maxConcurrentWorkers"), slog.Int("value", opts.MaxConcurrentWorkers))
		return err
	}

	allowedFormats := []audit.OutputFormat{audit.OutputFormatText, audit.OutputFormatJSON, audit.OutputFormatYAML}
	if !isValidEnumValue(opts.OutputFormat, allowedFormats) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", audit.ErrConfigValidation, opts.OutputFormat, allowedFormats)
		logger.Error(err.Error(), slog.String("key", "outputFormat"), slog.String("value", string(opts.OutputFormat)))
		return err
	}

	if opts.SortEnabled {
		if _, parseErr := language.Parse(opts.SortLocale); parseErr != nil {
			err := fmt.Errorf("%w: invalid value '%s' for key 'sortLocale' (flag --sort-locale): %w", audit.ErrConfigValidation, opts.SortLocale, parseErr)
			logger.Error(err.Error(), slog.String("key", "sortLocale"), slog.String("value", opts.SortLocale))
			return err
		}
	}

	if opts.Verbose {
		if opts.TuiEnabled && !flags.Changed("no-tui") {
			logger.Debug("Verbose mode enabled, TUI explicitly disabled")
		}
		// Verbose log output and the TUI fight over the terminal.
		opts.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.String("bookmarks", opts.BookmarksPath),
		slog.String("stateFile", opts.StatePath),
		slog.Int("concurrency", opts.MaxConcurrentWorkers),
		slog.Int("timeoutSeconds", opts.RequestTimeoutSeconds),
		slog.Int("timeoutOverrule", opts.TimeoutOverruleCount),
		slog.Bool("tuiEnabledEffective", opts.TuiEnabled))

	return nil
}
