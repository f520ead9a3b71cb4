package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/surge-downloader/loader/internal/clipboard"
	"github.com/surge-downloader/loader/internal/config"
	"github.com/surge-downloader/loader/internal/engine/connectivity"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/history"
	"github.com/surge-downloader/loader/internal/utils"
)

// getFlags holds the options of the get command.
type getFlags struct {
	Output      string
	Batch       string
	Clipboard   bool
	Format      string
	ChunkSize   int64
	Timeout     time.Duration
	Headers     []string
	Method      string
	Data        string
	ContentType string
	NoResume    bool
	Retries     int
	Quiet       bool
	Print       bool
	Stats       bool
	Force       bool
}

var getCmd = &cobra.Command{
	Use:     "get [url[,mirror...]]...",
	Aliases: []string{"add", "fetch"},
	Short:   "Fetch one or more resources",
	Long: `Fetch one or more HTTP resources. Binary GETs against servers that honour
ranges are loaded in chunks and resume after connectivity loss; other
requests are made in one exchange and decoded with --format.

A URL may be followed by comma-separated mirrors; the first mirror that
answers a ranged probe is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(cmd)
		defer history.CloseDB()
		defer utils.CloseDebug()

		f := readGetFlags(cmd)
		if len(args) == 0 && f.Batch == "" && !f.Clipboard {
			return cmd.Help()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runGet(ctx, settings, f, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	flags := getCmd.Flags()
	flags.StringP("output", "o", "", "Output file or directory")
	flags.StringP("batch", "b", "", "File with URLs (one per line) or a YAML manifest")
	flags.Bool("clipboard", false, "Read URLs from the clipboard")
	flags.String("format", "binary", "Payload format: binary, text, json, yaml, document")
	flags.Int64("chunk-size", 0, "Bytes per ranged request (default from settings)")
	flags.Duration("timeout", 0, "Request timeout (default from settings)")
	flags.StringArrayP("header", "H", nil, "Extra request header \"Name: value\" (repeatable)")
	flags.StringP("method", "X", "", "HTTP method")
	flags.StringP("data", "d", "", "Request body")
	flags.String("content-type", "", "Content-Type of the request body")
	flags.Bool("no-resume", false, "Do not resume automatically after connectivity loss")
	flags.Int("retries", defaultRetries, "Retries for failed requests")
	flags.BoolP("quiet", "q", false, "Suppress progress output")
	flags.Bool("print", false, "Write the decoded payload to stdout instead of a file")
	flags.Bool("stats", false, "Print transfer statistics")
	flags.Bool("force", false, "Fetch even if the URL is already in the history")
	rootCmd.AddCommand(getCmd)
}

func readGetFlags(cmd *cobra.Command) getFlags {
	var f getFlags
	flags := cmd.Flags()
	f.Output, _ = flags.GetString("output")
	f.Batch, _ = flags.GetString("batch")
	f.Clipboard, _ = flags.GetBool("clipboard")
	f.Format, _ = flags.GetString("format")
	f.ChunkSize, _ = flags.GetInt64("chunk-size")
	f.Timeout, _ = flags.GetDuration("timeout")
	f.Headers, _ = flags.GetStringArray("header")
	f.Method, _ = flags.GetString("method")
	f.Data, _ = flags.GetString("data")
	f.ContentType, _ = flags.GetString("content-type")
	f.NoResume, _ = flags.GetBool("no-resume")
	f.Retries, _ = flags.GetInt("retries")
	f.Quiet, _ = flags.GetBool("quiet")
	f.Print, _ = flags.GetBool("print")
	f.Stats, _ = flags.GetBool("stats")
	f.Force, _ = flags.GetBool("force")
	return f
}

// collectJobs gathers jobs from args, the batch file and the clipboard.
func collectJobs(f getFlags, args []string) ([]job, error) {
	format, err := types.ParseDataFormat(f.Format)
	if err != nil {
		return nil, err
	}
	headers, err := parseHeaderFlags(f.Headers)
	if err != nil {
		return nil, err
	}

	var jobs []job
	for _, arg := range args {
		jobs = append(jobs, job{URL: arg, Output: f.Output, Format: format, Headers: headers})
	}
	if f.Batch != "" {
		batch, err := readBatchFile(f.Batch)
		if err != nil {
			return nil, err
		}
		for _, j := range batch {
			if j.Output == "" {
				j.Output = f.Output
			}
			if j.Format == types.FormatBinary {
				j.Format = format
			}
			j.Headers = mergeHeaders(headers, j.Headers)
			jobs = append(jobs, j)
		}
	}
	if f.Clipboard {
		urls, err := clipboard.ReadURLs()
		if err != nil {
			return nil, err
		}
		for _, u := range urls {
			jobs = append(jobs, job{URL: u, Output: f.Output, Format: format, Headers: headers})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no URLs given", types.ErrInvalidRequest)
	}
	return jobs, nil
}

func runtimeFor(settings *config.Settings, f getFlags) *types.RuntimeConfig {
	rt := settings.ToRuntimeConfig()
	if f.ChunkSize > 0 {
		rt.ChunkSize = f.ChunkSize
	}
	if f.Timeout > 0 {
		rt.RequestTimeout = f.Timeout
	}
	if f.NoResume {
		rt.AutoResume = false
	}
	return rt
}

// runGet fetches every job in turn and reports the number of failures as an
// error.
func runGet(ctx context.Context, settings *config.Settings, f getFlags, args []string, stdout, stderr io.Writer) error {
	jobs, err := collectJobs(f, args)
	if err != nil {
		return err
	}

	rt := runtimeFor(settings, f)
	opts := transferOptions{
		Runtime:     rt,
		Retries:     max(f.Retries, 0),
		RetryDelay:  defaultRetryDelay,
		Method:      f.Method,
		ContentType: f.ContentType,
	}
	if f.Data != "" {
		opts.Body = []byte(f.Data)
	}
	if !f.Quiet {
		opts.Progress = stderr
	}
	if settings.General.RecordHistory {
		opts.Recorder = history.NewRecorder()
	}
	if rt.GetAutoResume() {
		prober := connectivity.NewProber(rt)
		prober.Start(ctx)
		defer prober.Stop()
		opts.Source = prober
	}

	failed := 0
	for _, j := range jobs {
		if err := runJob(ctx, settings, f, j, opts, stdout, stderr); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stderr, "%s %s: %v\n", errorStyle.Render("Failed"), j.URL, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(jobs))
	}
	return nil
}

func runJob(ctx context.Context, settings *config.Settings, f getFlags, j job, opts transferOptions, stdout, stderr io.Writer) error {
	if strings.Contains(j.URL, ",") {
		chosen, err := selectMirror(ctx, j.URL)
		if err != nil {
			return err
		}
		j.URL = chosen
	}

	if settings.General.WarnOnDuplicate && !f.Force {
		if recs, err := history.FindByURL(j.URL); err == nil {
			for _, rec := range recs {
				if rec.Status == history.StatusCompleted {
					fmt.Fprintln(stderr, warnStyle.Render("Skipping "+j.URL+": already fetched (use --force)"))
					return nil
				}
			}
		}
	}

	res, err := runTransfer(ctx, j, opts)
	if err != nil {
		return err
	}

	if f.Stats {
		fmt.Fprintln(stderr, res.Stats.String())
	}

	if f.Print && j.Output == "" {
		return printValue(stdout, res.Value)
	}

	dest := resolveOutputPath(j.Output, settings.General.DefaultDownloadDir, res.Filename)
	if !f.Force {
		dest = uniqueFilePath(dest)
	}
	if err := saveOutput(dest, res.Data); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "%s %s -> %s (%s)\n",
		successStyle.Render("Saved"), urlStyle.Render(j.URL), dest,
		utils.ConvertBytesToHumanReadable(int64(len(res.Data))))
	return nil
}

// printValue writes a decoded payload to w in a form matching its type.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		_, err := w.Write(val)
		return err
	case string:
		_, err := io.WriteString(w, val)
		return err
	case *html.Node:
		return html.Render(w, val)
	case map[string]any, []any:
		out, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			// YAML documents may carry non-string keys.
			out, err = yaml.Marshal(val)
			if err != nil {
				return err
			}
			_, err = w.Write(out)
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	default:
		out, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
}
