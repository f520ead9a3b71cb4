package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/loader/internal/utils"
	"github.com/surge-downloader/loader/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(cmd)
		defer utils.CloseDebug()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "surge-loader %s (built %s)\n", Version, BuildTime)

		check, _ := cmd.Flags().GetBool("check")
		if !check || settings.General.SkipUpdateCheck {
			return nil
		}
		return reportUpdate(cmd.Context(), out, Version)
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "Check for a newer release")
	rootCmd.AddCommand(versionCmd)
}

func reportUpdate(ctx context.Context, w io.Writer, current string) error {
	info, err := version.CheckForUpdate(ctx, current)
	if err != nil {
		return err
	}
	switch {
	case info == nil:
		fmt.Fprintln(w, dimStyle.Render("Development build, update check skipped."))
	case info.UpdateAvailable:
		fmt.Fprintf(w, "%s %s -> %s\n  %s\n", warnStyle.Render("Update available:"),
			info.CurrentVersion, info.LatestVersion, urlStyle.Render(info.ReleaseURL))
	default:
		fmt.Fprintln(w, successStyle.Render("Up to date."))
	}
	return nil
}
