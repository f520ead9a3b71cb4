package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/loader/internal/config"
	"github.com/surge-downloader/loader/internal/history"
	"github.com/surge-downloader/loader/internal/utils"
	"github.com/surge-downloader/loader/internal/version"
)

// Version information - set via ldflags during build
var (
	Version   = version.Version
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "surge-loader",
	Short: "Resumable HTTP resource loader",
	Long: `surge-loader fetches HTTP resources as a sequence of ranged requests,
survives connectivity loss and can decode text, JSON, YAML, HTML and zip payloads.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log engine activity to stderr")
	rootCmd.SetVersionTemplate("surge-loader version {{.Version}}\n")
}

// initializeGlobalState sets up directories, the history ledger and logging,
// and returns the effective settings. With --verbose, logs go to stderr
// instead of the debug file.
func initializeGlobalState(cmd *cobra.Command) *config.Settings {
	settings, err := config.LoadSettings()
	if err != nil {
		utils.Debug("Error loading settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}

	if err := config.EnsureDirs(); err != nil {
		utils.Debug("Error creating directories: %v", err)
	}

	history.Configure(config.GetHistoryPath())

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		utils.SetLogOutput(cmd.ErrOrStderr(), zerolog.DebugLevel)
	} else if err := utils.ConfigureDebug(config.GetLogsDir()); err == nil {
		utils.CleanupLogs(settings.General.LogRetentionCount)
	}
	return settings
}
