package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/loader/internal/archive"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/source"
	"github.com/surge-downloader/loader/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:     "ls <url|file>",
	Aliases: []string{"l"},
	Short:   "List or extract the entries of a zip archive",
	Long: `List the entries of a zip archive fetched from a URL or read from a local
file. With --extract, one entry is decompressed to stdout or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(cmd)
		defer utils.CloseDebug()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		quiet, _ := cmd.Flags().GetBool("quiet")
		opts := transferOptions{
			Runtime:    settings.ToRuntimeConfig(),
			Retries:    defaultRetries,
			RetryDelay: defaultRetryDelay,
		}
		if !quiet {
			opts.Progress = cmd.ErrOrStderr()
		}
		data, err := loadArchive(ctx, args[0], opts)
		if err != nil {
			return err
		}
		idx, err := archive.Open(data)
		if err != nil {
			return err
		}

		extract, _ := cmd.Flags().GetString("extract")
		if extract == "" {
			printEntries(cmd.OutOrStdout(), idx.Entries())
			return nil
		}
		output, _ := cmd.Flags().GetString("output")
		return extractEntry(ctx, idx, extract, output, cmd.OutOrStdout())
	},
}

func init() {
	lsCmd.Flags().StringP("extract", "x", "", "Entry to decompress")
	lsCmd.Flags().StringP("output", "o", "", "File to write the extracted entry to (default stdout)")
	lsCmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
	rootCmd.AddCommand(lsCmd)
}

// loadArchive fetches target when it is an http(s) URL and reads it from
// disk otherwise.
func loadArchive(ctx context.Context, target string, opts transferOptions) ([]byte, error) {
	if !source.IsHTTPURL(target) {
		return os.ReadFile(target)
	}
	res, err := runTransfer(ctx, job{URL: target, Format: types.FormatBinary}, opts)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func printEntries(w io.Writer, entries []archive.Entry) {
	var total int64
	for _, e := range entries {
		if e.Dir {
			fmt.Fprintf(w, "%10s  %-16s  %s\n", "-", e.Modified.Local().Format("2006-01-02 15:04"), dimStyle.Render(e.Path))
			continue
		}
		total += e.Size
		fmt.Fprintf(w, "%10s  %-16s  %s\n",
			utils.ConvertBytesToHumanReadable(e.Size),
			e.Modified.Local().Format("2006-01-02 15:04"),
			e.Path)
	}
	fmt.Fprintf(w, "%d entries, %s uncompressed\n", len(entries), utils.ConvertBytesToHumanReadable(total))
}

func extractEntry(ctx context.Context, idx *archive.Index, entry, output string, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res := <-idx.Open(ctx, entry)
	if res.Err != nil {
		return res.Err
	}
	if output == "" {
		_, err := stdout.Write(res.Data)
		return err
	}
	return saveOutput(output, res.Data)
}
