// Package main provides the entry point for the stratus-audio CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/stratus-audio/pkg/audio"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	volume     float64
	cacheDir   string
	workers    int
	player     string
	force      bool
	timeout    time.Duration

	rootCmd = &cobra.Command{
		Use:   "stratus-audio [URL...]",
		Short: "Download and play decoded voice clips",
		Long: paragraph(
			fmt.Sprintf("\nDownload decoded voice clips into a local cache and play them %s, one at a time.", keyword("in order")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	volume = viper.GetFloat64("volume")
	cacheDir = viper.GetString("cache_dir")
	workers = viper.GetInt("workers")
	player = viper.GetString("player")
	force = viper.GetBool("force")
	timeout = viper.GetDuration("timeout")

	if workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", timeout)
	}
	if volume < 0 || volume > 1 {
		if cmd.Flags().Changed("volume") {
			return fmt.Errorf("volume must be between 0.0 and 1.0, got %v", volume)
		}
		volume = 1.0
	}
	return nil
}

// pipelineConfig assembles the pipeline configuration from flags, config
// file, and environment.
func pipelineConfig() audio.Config {
	cfg := audio.DefaultConfig()
	if cacheDir != "" {
		cfg.CacheDir = expandPath(cacheDir)
	}
	cfg.Volume = volume
	cfg.Workers = workers
	cfg.Player = player
	cfg.Force = force
	cfg.Timeout = timeout
	return cfg
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// cliListener drives terminal output and tracks clip completion so the
// command can exit once every submitted clip finished or failed.
type cliListener struct {
	audio.NopListener

	wg     sync.WaitGroup
	failed atomic.Int32
}

func (l *cliListener) DownloadCompleted(item audio.Item, result audio.DownloadResult) {
	if result.Cached {
		log.Debug("serving clip from cache", "url", item.URL)
	}
}

func (l *cliListener) DownloadFailed(item audio.Item, err error) {
	fmt.Fprintf(os.Stderr, "failed: %s: %v\n", item.URL, err)
	l.failed.Add(1)
	l.wg.Done()
}

func (l *cliListener) PlaybackStarted(item audio.Item) {
	fmt.Println("Playing", keyword(filepath.Base(item.URL)))
}

func (l *cliListener) PlaybackCompleted(audio.Item) {
	l.wg.Done()
}

func execute(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help() //nolint:wrapcheck
	}

	listener := &cliListener{}
	handler, err := audio.NewHandler(pipelineConfig(), listener)
	if err != nil {
		return fmt.Errorf("unable to start pipeline: %w", err)
	}
	defer handler.Shutdown()

	if !handler.Engine().Profile().Available() {
		return errors.New("no audio player found in PATH")
	}

	for _, arg := range args {
		listener.wg.Add(1)
		if _, err := handler.QueueClip(arg, audio.Metadata{}); err != nil {
			listener.wg.Done()
			listener.failed.Add(1)
			fmt.Fprintf(os.Stderr, "rejected: %s: %v\n", arg, err)
		}
	}

	listener.wg.Wait()

	if n := listener.failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d clips failed", n, len(args))
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().Float64VarP(&volume, "volume", "v", 1.0, "playback volume (0.0 to 1.0)")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory for downloaded clips")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", audio.DefaultWorkers, "concurrent downloads")
	rootCmd.Flags().StringVarP(&player, "player", "p", "", "audio player binary (default: auto-detect)")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "re-download clips even when cached")
	rootCmd.Flags().DurationVar(&timeout, "timeout", audio.DefaultDownloadTimeout, "download timeout")

	// Config bindings
	_ = viper.BindPFlag("volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("cache_dir", rootCmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("player", rootCmd.Flags().Lookup("player"))
	_ = viper.BindPFlag("force", rootCmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("timeout", rootCmd.Flags().Lookup("timeout"))

	viper.SetDefault("volume", 1.0)
	viper.SetDefault("cache_dir", "")
	viper.SetDefault("workers", audio.DefaultWorkers)
	viper.SetDefault("player", "")
	viper.SetDefault("force", false)
	viper.SetDefault("timeout", audio.DefaultDownloadTimeout)

	rootCmd.AddCommand(configCmd, cacheCmd, devicesCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "stratus-audio")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "stratus-audio")}, dirs...)
	}

	if c := os.Getenv("STRATUS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("stratus-audio")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("stratus")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "stratus-audio.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
