package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/five82/vigil/internal/app"
)

var (
	configPath string
	prefsPath  string
	logLevel   string
	jsonOutput bool
)

var (
	watchHeadless bool
	watchFast     float64
	watchSlow     float64
)

// rootCmd runs watch mode when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Watch Frigate NVR detection events from the terminal",
	Long: `vigil polls a Frigate server for detection events, shows in-progress
events first, and resolves playable clip URLs.`,
	SilenceUsage: true,
	RunE:         runWatch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll Frigate and show events in the TUI",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return app.Run(cmd.Context(), app.Options{
		ConfigPath: configPath,
		PrefsPath:  prefsPath,
		Headless:   watchHeadless,
		LogLevel:   logLevel,
		FastPoll:   seconds(watchFast),
		SlowPoll:   seconds(watchSlow),
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/vigil/config.toml)")
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "preferences file (default ~/.config/vigil/prefs.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	for _, c := range []*cobra.Command{rootCmd, watchCmd} {
		c.Flags().BoolVar(&watchHeadless, "headless", false, "log event changes instead of starting the TUI")
		c.Flags().Float64Var(&watchFast, "poll-fast", 0, "in-progress poll interval in seconds")
		c.Flags().Float64Var(&watchSlow, "poll-slow", 0, "full event list poll interval in seconds")
	}

	rootCmd.AddCommand(watchCmd, eventsCmd, camerasCmd, versionCmd, mediaCmd)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		return 1
	}
	return 0
}
