package main

import (
	"bytes"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/resumable"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/stats"
	"github.com/surge-downloader/loader/internal/testutil"
)

var (
	flagServer    = flag.Bool("server", false, "Run as benchmark server only")
	flagPort      = flag.Int("port", 0, "Port to listen on (0 for random)")
	flagSize      = flag.String("size", "64MB", "Resource size to serve (e.g. 500KB, 64MB)")
	flagChunkSize = flag.String("chunk", "1MB", "Bytes per ranged request")
	flagURL       = flag.String("url", "", "Load this URL instead of the built-in server")
)

var sizeUnits = []struct {
	suffix string
	mult   int64
}{{"GB", types.GB}, {"MB", types.MB}, {"KB", types.KB}, {"B", 1}}

func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range sizeUnits {
		if trimmed, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(trimmed), u.mult
			break
		}
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return val * mult, nil
}

func main() {
	flag.Parse()

	size, err := parseSize(*flagSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid size: %v\n", err)
		os.Exit(1)
	}
	chunk, err := parseSize(*flagChunkSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid chunk size: %v\n", err)
		os.Exit(1)
	}

	if *flagServer {
		data := testutil.PatternData(size)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			http.ServeContent(w, r, "bench.bin", time.Now(), bytes.NewReader(data))
		})
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *flagPort))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to listen: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Server listening on http://%s/bench.bin\n", listener.Addr().String())
		if err := http.Serve(listener, handler); err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	url := *flagURL
	if url == "" {
		srv := testutil.NewMockServer(testutil.PatternData(size), testutil.WithFilename("bench.bin"))
		defer srv.Close()
		url = srv.URL() + "/bench.bin"
		fmt.Printf("Benchmark server running at %s\n", url)
	}

	l := resumable.New(resumable.WithRuntime(&types.RuntimeConfig{ChunkSize: chunk}))
	metrics := stats.NewMetrics()
	defer metrics.Attach(l.Events())()

	done := make(chan error, 1)
	l.Events().SubscribeAll(func(e events.Event) {
		var err error
		switch e.Code {
		case events.CodeComplete:
		case events.CodeError:
			err = e.Err
		default:
			return
		}
		select {
		case done <- err:
		default:
		}
	})

	fmt.Printf("Loading %s in %s chunks...\n", *flagSize, *flagChunkSize)
	if err := l.Load(types.NewRequest(url)); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	if err := <-done; err != nil {
		l.Close()
		fmt.Fprintf(os.Stderr, "Transfer failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(metrics.Results().String())
}
