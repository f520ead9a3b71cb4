package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/surge-downloader/loader/internal/engine"
	"github.com/surge-downloader/loader/internal/engine/connectivity"
	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/resumable"
	"github.com/surge-downloader/loader/internal/engine/single"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/history"
	"github.com/surge-downloader/loader/internal/source"
	"github.com/surge-downloader/loader/internal/stats"
	"github.com/surge-downloader/loader/internal/utils"
)

const (
	defaultRetries    = 3
	defaultRetryDelay = time.Second
	progressInterval  = 500 * time.Millisecond
)

// transferOptions configures runTransfer.
type transferOptions struct {
	Runtime     *types.RuntimeConfig
	Source      connectivity.Source // nil disables automatic resume
	Recorder    *history.Recorder   // nil disables history
	Retries     int
	RetryDelay  time.Duration
	Progress    io.Writer // nil disables progress lines
	Method      string
	Body        []byte
	ContentType string
}

// transferResult is what one job produced.
type transferResult struct {
	URL         string
	Data        []byte
	Value       any
	Filename    string
	ContentType string
	Resumable   bool
	Stats       stats.Results
}

func buildRequest(j job, opts transferOptions) *types.Request {
	req := types.NewRequest(j.URL)
	req.Method = opts.Method
	req.Body = opts.Body
	req.ContentType = opts.ContentType

	names := make([]string, 0, len(j.Headers))
	for name := range j.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.AddHeader(name, j.Headers[name])
	}
	return req
}

// runTransfer fetches one job. Plain binary GETs are probed first and go
// through the resumable engine when the server honours ranges; everything
// else is a single request decoded per the job's format.
func runTransfer(ctx context.Context, j job, opts transferOptions) (*transferResult, error) {
	req := buildRequest(j, opts)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if j.Format == types.FormatBinary && req.GetMethod() == "GET" {
		probe, err := engine.ProbeServer(ctx, req.URL, "", j.Headers)
		if err != nil {
			return nil, err
		}
		if probe.Resumable() {
			res, err := runResumable(ctx, req, opts)
			if err != nil {
				return nil, err
			}
			res.Filename = probe.Filename
			res.ContentType = probe.ContentType
			return res, nil
		}
		utils.Debug("transfer: %s is not resumable, using a single request", req.URL)
	}

	res, err := runSingle(ctx, req, j.Format, opts)
	if err != nil {
		return nil, err
	}
	if res.Filename == "" {
		res.Filename = filenameFromURL(req.URL)
	}
	return res, nil
}

// selectMirror returns the first candidate that answers a ranged probe,
// falling back to the first candidate when none does.
func selectMirror(ctx context.Context, arg string) (string, error) {
	primary, candidates := source.ParseCommaArg(arg)
	if primary == "" {
		return "", fmt.Errorf("%w: no http(s) URL in %q", types.ErrInvalidRequest, arg)
	}
	if len(candidates) == 1 {
		return primary, nil
	}
	valid, errs := engine.ProbeMirrors(ctx, candidates)
	for mirror, err := range errs {
		utils.Debug("mirror %s rejected: %v", mirror, err)
	}
	if len(valid) == 0 {
		return primary, nil
	}
	return valid[0], nil
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

func runResumable(ctx context.Context, req *types.Request, opts transferOptions) (*transferResult, error) {
	loaderOpts := []resumable.Option{resumable.WithRuntime(opts.Runtime)}
	if opts.Source != nil {
		loaderOpts = append(loaderOpts, resumable.WithConnectivity(opts.Source))
	}
	l := resumable.New(loaderOpts...)
	bus := l.Events()

	metrics := stats.NewMetrics()
	defer metrics.Attach(bus)()
	if opts.Recorder != nil {
		defer opts.Recorder.Attach(bus)()
	}
	if opts.Progress != nil {
		defer newProgressPrinter(opts.Progress, req.URL).attach(bus)()
	}

	outcome := make(chan error, 1)
	report := func(err error) {
		select {
		case outcome <- err:
		default:
		}
	}

	var mu sync.Mutex
	retries, offline := 0, false
	var timer *time.Timer
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	sub := bus.SubscribeAll(func(e events.Event) {
		switch e.Code {
		case events.CodeComplete:
			report(nil)
		case events.CodeProgress:
			mu.Lock()
			retries = 0
			mu.Unlock()
		case events.CodeNetworkOffline:
			mu.Lock()
			offline = true
			mu.Unlock()
		case events.CodeNetworkRecovered:
			mu.Lock()
			offline = false
			mu.Unlock()
		case events.CodeError:
			if !l.Suspended() {
				report(e.Err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if offline && opts.Source != nil {
				return // recovery resumes the transfer
			}
			if retries >= opts.Retries {
				report(e.Err)
				return
			}
			retries++
			utils.Debug("transfer: chunk failed at %d, retry %d/%d: %v", e.Loaded, retries, opts.Retries, e.Err)
			timer = time.AfterFunc(opts.RetryDelay, func() {
				if err := l.Resume(); err != nil && !errors.Is(err, types.ErrInvalidState) {
					report(err)
				}
			})
		}
	})
	defer bus.Unsubscribe(sub)

	if err := l.Load(req); err != nil {
		return nil, err
	}

	select {
	case err := <-outcome:
		if err != nil {
			l.Close()
			return nil, err
		}
	case <-ctx.Done():
		l.Close()
		return nil, ctx.Err()
	}

	data := l.Data()
	return &transferResult{
		URL:       req.URL,
		Data:      data,
		Value:     data,
		Resumable: true,
		Stats:     metrics.Results(),
	}, nil
}

// retryable reports whether a failed single request is worth repeating.
func retryable(err error) bool {
	return errors.Is(err, types.ErrNetwork) || errors.Is(err, types.ErrTimeout)
}

func runSingle(ctx context.Context, req *types.Request, format types.DataFormat, opts transferOptions) (*transferResult, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			utils.Debug("transfer: retry %d/%d for %s: %v", attempt, opts.Retries, req.URL, lastErr)
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := loadSingle(ctx, req, format, opts)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func loadSingle(ctx context.Context, req *types.Request, format types.DataFormat, opts transferOptions) (*transferResult, error) {
	l := single.New(single.WithRuntime(opts.Runtime), single.WithFormat(format))
	bus := l.Events()

	metrics := stats.NewMetrics()
	defer metrics.Attach(bus)()
	if opts.Recorder != nil {
		defer opts.Recorder.Attach(bus)()
	}
	if opts.Progress != nil {
		defer newProgressPrinter(opts.Progress, req.URL).attach(bus)()
	}

	if err := l.Load(req); err != nil {
		return nil, err
	}
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			l.Close()
		}
		return nil, err
	}
	return &transferResult{
		URL:         req.URL,
		Data:        l.Data(),
		Value:       l.Value(),
		ContentType: l.ContentType(),
		Stats:       metrics.Results(),
	}, nil
}

// progressPrinter writes throttled progress lines and connectivity notices.
type progressPrinter struct {
	w    io.Writer
	url  string
	mu   sync.Mutex
	last time.Time
}

func newProgressPrinter(w io.Writer, url string) *progressPrinter {
	return &progressPrinter{w: w, url: url}
}

func (p *progressPrinter) attach(bus *events.Bus) func() {
	sub := bus.SubscribeAll(p.handle)
	return func() { bus.Unsubscribe(sub) }
}

func (p *progressPrinter) handle(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cursor := types.ByteCursor{Loaded: e.Loaded, Total: e.Total}
	switch e.Code {
	case events.CodeStart:
		fmt.Fprintf(p.w, "%s %s\n", headerStyle.Render("Loading"), urlStyle.Render(p.url))
	case events.CodeProgress:
		if e.Time.Sub(p.last) < progressInterval && !cursor.Done() {
			return
		}
		p.last = e.Time
		fmt.Fprintln(p.w, renderProgress(cursor))
	case events.CodeNetworkOffline:
		fmt.Fprintln(p.w, warnStyle.Render(fmt.Sprintf("Network offline at %s, waiting", utils.ConvertBytesToHumanReadable(e.Loaded))))
	case events.CodeNetworkRecovered:
		fmt.Fprintln(p.w, successStyle.Render("Network recovered, resuming"))
	case events.CodeError:
		fmt.Fprintln(p.w, warnStyle.Render("Transfer error: "+e.Desc))
	case events.CodeComplete:
		fmt.Fprintln(p.w, renderProgress(cursor))
	}
}
