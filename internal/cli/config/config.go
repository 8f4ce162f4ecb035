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
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stackvity/tex-joiner/pkg/reflow/cache"
	"github.com/stackvity/tex-joiner/pkg/util"
	"golang.org/x/net/html/charset"
)

const (
	EnvPrefix         = "TEXJOIN"
	DefaultConfigName = "texjoin"
)

// flagKeys maps viper keys to the flag that overrides them.
var flagKeys = map[string]string{
	"verbose":         "verbose",
	"inplace":         "inplace",
	"check":           "check",
	"stdout":          "stdout",
	"delete":          "delete",
	"ignore":          "ignore",
	"languages":       "languages",
	"onError":         "onError",
	"concurrency":     "concurrency",
	"cache":           "cache",
	"cacheFile":       "cache-file",
	"git.diffOnly":    "git-diff-only",
	"git.sinceRef":    "git-since",
	"outputFormat":    "output-format",
	"metricsFile":     "metrics-file",
	"defaultEncoding": "default-encoding",
}

// DefineFlags registers the run flags on fs. Their names match flagKeys.
func DefineFlags(fs *pflag.FlagSet) {
	// Write mode
	fs.Bool("inplace", false, "Overwrite each document, keeping a verified <name>.bak<ext> backup")
	fs.Bool("check", false, "Write nothing; exit non-zero when any document would change")
	fs.Bool("stdout", false, "Print the reflowed text of a single input file to stdout")
	fs.Bool("delete", false, "Join lines without inserting a space")

	// Discovery
	fs.Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
	fs.StringArray("ignore", []string{}, "Glob patterns for files/directories to ignore (can be specified multiple times)")
	fs.StringSlice("languages", reflow.DefaultLanguages, "Languages accepted when walking directories")
	fs.String("default-encoding", reflow.DefaultEncoding, "Charset assumed for non-UTF-8 input that cannot be detected")
	fs.String("onError", string(reflow.DefaultOnErrorMode), `Behavior on per-file errors ("continue" or "stop")`)

	// Performance & Caching
	fs.Int("concurrency", reflow.DefaultConcurrency, "Number of parallel workers (0 for auto-detect CPU cores)")
	fs.Bool("cache", reflow.DefaultCacheEnabled, "Skip documents unchanged since the last run")
	fs.Bool("no-cache", false, "Ignore cache reads for this run (still writes cache)")
	fs.Bool("clear-cache", false, "Delete the cache file before starting")
	fs.String("cache-file", "", "Cache index path (default: .texjoin.cache in the first input directory)")

	// Git
	fs.Bool("git-diff-only", false, "Process only files changed in the Git index/working tree vs HEAD")
	fs.String("git-since", "", "Process only files changed since the specified Git reference (commit/tag/branch)")

	// Output
	fs.String("output-format", string(reflow.DefaultOutputFormat), `Final report format ("text", "json", "yaml", "markdown")`)
	fs.String("metrics-file", "", "Write Prometheus metrics for the run to this textfile")
}

// LoadAndValidate merges defaults, the config file, the selected profile,
// TEXJOIN_* environment variables and flags into reflow.Options, validates
// the result and sets up the logger. paths are the positional arguments.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet, paths []string) (reflow.Options, *slog.Logger, error) {
	var opts reflow.Options
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Error("Failed to get user home directory", slog.Any("error", err))
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
			tempLogger.Error("Error reading configuration file", slog.String("path", used), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error reading config file '%s': %w", used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		if err := applyProfile(v, profileName); err != nil {
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", name))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}
	opts.AppVersion = appVersion
	opts.Paths = append([]string(nil), paths...)

	// Negated and one-shot flags have no config key of their own.
	if verbose {
		opts.Verbose = true
	}
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			opts.TuiEnabled = false
		}
	}
	if flags.Changed("no-cache") {
		opts.IgnoreCacheRead, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("clear-cache") {
		opts.ClearCache, _ = flags.GetBool("clear-cache")
	}

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
		slog.String("writeMode", string(opts.WriteMode)),
		slog.String("logLevel", logLevel.String()),
	)
	return opts, logger, nil
}

func applyProfile(v *viper.Viper, profileName string) error {
	profileKey := "profiles." + profileName
	if !v.IsSet(profileKey) {
		configPath := v.ConfigFileUsed()
		if configPath == "" {
			configPath = "(no config file found)"
		}
		return fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
	}
	sub := v.Sub(profileKey)
	if sub == nil {
		return fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
	}
	if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
		return fmt.Errorf("error merging profile '%s': %w", profileName, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// --- Behavior & Control ---
	v.SetDefault("verbose", false)
	v.SetDefault("tuiEnabled", reflow.DefaultTuiEnabled)
	v.SetDefault("onError", string(reflow.DefaultOnErrorMode))

	// --- Reflow ---
	v.SetDefault("inplace", false)
	v.SetDefault("check", false)
	v.SetDefault("stdout", false)
	v.SetDefault("delete", false)
	v.SetDefault("extraBlockCommands", []string{})
	v.SetDefault("extraPreservedEnvironments", []string{})

	// --- Performance & Caching ---
	v.SetDefault("concurrency", reflow.DefaultConcurrency)
	v.SetDefault("cache", reflow.DefaultCacheEnabled)
	v.SetDefault("cacheFile", "")
	v.SetDefault("cacheFormat", cache.DefaultFormat)

	// --- Discovery ---
	v.SetDefault("ignore", []string{})
	v.SetDefault("languages", reflow.DefaultLanguages)
	v.SetDefault("languageMappings", map[string]string{})
	v.SetDefault("defaultEncoding", reflow.DefaultEncoding)

	// --- Output ---
	v.SetDefault("outputFormat", string(reflow.DefaultOutputFormat))
	v.SetDefault("metricsFile", "")

	// --- Git ---
	v.SetDefault("git.diffOnly", false)
	v.SetDefault("git.sinceRef", reflow.DefaultGitSinceRef)
}

func isValidEnumValue[T ~string](value T, allowed []T) bool {
	return slices.Contains(allowed, value)
}

// validateAndDeriveOptions rejects inconsistent settings and fills the
// derived fields (write mode, Git mode, effective TUI state). Errors wrap
// reflow.ErrConfigValidation, or reflow.ErrInputNotFound for missing inputs.
func validateAndDeriveOptions(opts *reflow.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	fail := func(err error, attrs ...any) error {
		logger.Error(err.Error(), attrs...)
		return err
	}

	// === Inputs ===
	if len(opts.Paths) == 0 {
		return fail(fmt.Errorf("%w: at least one input path is required", reflow.ErrConfigValidation))
	}
	for _, p := range opts.Paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fail(fmt.Errorf("%w: %s", reflow.ErrInputNotFound, p), slog.String("path", p))
			}
			return fail(fmt.Errorf("%w: cannot access input path '%s': %w", reflow.ErrConfigValidation, p, err), slog.String("path", p))
		}
	}

	// === Write mode ===
	mode, err := reflow.DeriveWriteMode(opts.InPlace, opts.Check, opts.ToStdout)
	if err != nil {
		return fail(err)
	}
	opts.WriteMode = mode
	if mode == reflow.WriteModeStdout {
		if len(opts.Paths) != 1 {
			return fail(fmt.Errorf("%w: --stdout takes exactly one input file, got %d", reflow.ErrConfigValidation, len(opts.Paths)))
		}
		if info, _ := os.Stat(opts.Paths[0]); info.IsDir() {
			return fail(fmt.Errorf("%w: --stdout requires a file, '%s' is a directory", reflow.ErrConfigValidation, opts.Paths[0]))
		}
	}

	// === Enum String Validations ===
	allowedOnError := []reflow.OnErrorMode{reflow.OnErrorContinue, reflow.OnErrorStop}
	if !isValidEnumValue(opts.OnErrorMode, allowedOnError) {
		return fail(fmt.Errorf("%w: invalid value '%s' for key 'onError' (flag --onError). Allowed: %v", reflow.ErrConfigValidation, opts.OnErrorMode, allowedOnError),
			slog.String("key", "onError"))
	}
	allowedOutputFormat := []reflow.OutputFormat{reflow.OutputFormatText, reflow.OutputFormatJSON, reflow.OutputFormatYAML, reflow.OutputFormatMarkdown}
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormat) {
		return fail(fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", reflow.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat),
			slog.String("key", "outputFormat"))
	}
	opts.CacheFormat = strings.ToLower(strings.TrimSpace(opts.CacheFormat))
	if !isValidEnumValue(opts.CacheFormat, []string{cache.FormatGob, cache.FormatJSON}) {
		return fail(fmt.Errorf("%w: invalid value '%s' for key 'cacheFormat'. Allowed: [%s %s]", reflow.ErrConfigValidation, opts.CacheFormat, cache.FormatGob, cache.FormatJSON),
			slog.String("key", "cacheFormat"))
	}

	// === Numeric Range Validations ===
	if opts.Concurrency < 0 {
		return fail(fmt.Errorf("%w: invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", reflow.ErrConfigValidation, opts.Concurrency),
			slog.String("key", "concurrency"))
	}

	// === Discovery ===
	for _, pattern := range opts.IgnorePatterns {
		if !util.ValidPattern(pattern) {
			return fail(fmt.Errorf("%w: invalid ignore pattern '%s'", reflow.ErrConfigValidation, pattern), slog.String("key", "ignore"))
		}
	}
	if len(opts.Languages) == 0 {
		opts.Languages = append([]string(nil), reflow.DefaultLanguages...)
	}
	// Keys are written without the dot in YAML since viper splits keys on it.
	for ext, lang := range opts.LanguageMappingsOverride {
		if strings.Trim(ext, ". ") == "" || strings.TrimSpace(lang) == "" {
			return fail(fmt.Errorf("%w: languageMappings entry '%s: %s' needs both an extension and a language", reflow.ErrConfigValidation, ext, lang),
				slog.String("key", "languageMappings"))
		}
	}
	if opts.DefaultEncoding != "" {
		if enc, _ := charset.Lookup(opts.DefaultEncoding); enc == nil {
			return fail(fmt.Errorf("%w: unknown encoding '%s' for key 'defaultEncoding'", reflow.ErrConfigValidation, opts.DefaultEncoding),
				slog.String("key", "defaultEncoding"))
		}
	}

	// === Paths ===
	if opts.CacheFilePath != "" {
		abs, err := filepath.Abs(opts.CacheFilePath)
		if err != nil {
			return fail(fmt.Errorf("%w: cannot resolve cache file path '%s': %w", reflow.ErrConfigValidation, opts.CacheFilePath, err))
		}
		opts.CacheFilePath = abs
	}
	if opts.MetricsFile != "" {
		abs, err := filepath.Abs(opts.MetricsFile)
		if err != nil {
			return fail(fmt.Errorf("%w: cannot resolve metrics file path '%s': %w", reflow.ErrConfigValidation, opts.MetricsFile, err))
		}
		opts.MetricsFile = abs
	}

	// === Git ===
	opts.GitDiffMode = reflow.GitDiffModeNone
	if opts.GitConfig.DiffOnly {
		if flags.Changed("git-since") {
			return fail(fmt.Errorf("%w: cannot use --git-diff-only and --git-since flags simultaneously", reflow.ErrConfigValidation))
		}
		opts.GitDiffMode = reflow.GitDiffModeDiffOnly
	} else if flags.Changed("git-since") {
		if opts.GitConfig.SinceRef == "" {
			return fail(fmt.Errorf("%w: flag --git-since requires a non-empty reference (commit/tag/branch)", reflow.ErrConfigValidation))
		}
		opts.GitDiffMode = reflow.GitDiffModeSince
	}
	logger.Debug("Git diff mode derived", slog.String("mode", string(opts.GitDiffMode)), slog.String("sinceRef", opts.GitConfig.SinceRef))

	// === TUI ===
	// Verbose logs and the TUI would fight over the terminal.
	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose mode enabled, TUI disabled")
		opts.TuiEnabled = false
	}
	if opts.WriteMode == reflow.WriteModeStdout {
		opts.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.Int("concurrency", opts.Concurrency),
		slog.String("writeMode", string(opts.WriteMode)),
		slog.Bool("cacheEnabled", opts.CacheEnabled),
		slog.String("cacheFilePath", opts.CacheFilePath),
		slog.Any("languages", opts.Languages),
		slog.Bool("tuiEnabledEffective", opts.TuiEnabled),
	)
	return nil
}
