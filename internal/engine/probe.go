// Package engine holds the pieces shared by both loader kinds, such as the
// capability probe that decides between a resumable and a single transfer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/surge-downloader/loader/internal/engine/transport"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// ProbeResult describes what the server reported for a resource.
type ProbeResult struct {
	SupportsRange bool
	FileSize      int64 // -1 when unknown
	Filename      string
	ContentType   string
	ETag          string
}

// Resumable reports whether the resource can be fetched in ranged chunks.
func (r *ProbeResult) Resumable() bool {
	return r.SupportsRange && r.FileSize >= 0
}

var probeClient transport.Doer = transport.NewClient(nil)

// ProbeServer asks for the first byte of rawurl to learn its size and whether
// ranges are honoured. Servers that reject the ranged probe are asked again
// without Range. A non-empty filenameHint overrides the server's filename.
func ProbeServer(ctx context.Context, rawurl, filenameHint string, headers map[string]string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	info, err := probe(ctx, rawurl, headers, true)
	if err != nil {
		var statusErr *types.HTTPStatusError
		if !errors.As(err, &statusErr) {
			return nil, err
		}
		utils.Debug("probe: ranged request rejected with %d, retrying without range", statusErr.Code)
		info, err = probe(ctx, rawurl, headers, false)
		if err != nil {
			return nil, err
		}
	}

	result := &ProbeResult{
		FileSize:    info.ContentLength,
		Filename:    info.Filename,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}
	if info.Status == http.StatusPartialContent {
		result.SupportsRange = true
		result.FileSize = info.CompleteLength
	}
	if filenameHint != "" {
		result.Filename = filenameHint
	}
	utils.Debug("probe: %s range=%v size=%d", rawurl, result.SupportsRange, result.FileSize)
	return result, nil
}

func probe(ctx context.Context, rawurl string, headers map[string]string, ranged bool) (transport.HeaderInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return transport.HeaderInfo{}, fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if ranged {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := probeClient.Do(req)
	if err != nil {
		return transport.HeaderInfo{}, fmt.Errorf("probe %s: %w", rawurl, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*types.KB))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return transport.HeaderInfo{}, &types.HTTPStatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return transport.ParseHeaderInfo(resp), nil
}

// ProbeMirrors probes every distinct mirror concurrently and returns those
// that support ranged requests, in input order, plus an error per rejected one.
func ProbeMirrors(ctx context.Context, mirrors []string) ([]string, map[string]error) {
	var unique []string
	seen := make(map[string]bool)
	for _, m := range mirrors {
		if !seen[m] {
			seen[m] = true
			unique = append(unique, m)
		}
	}

	ok := make([]bool, len(unique))
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, mirror := range unique {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ProbeServer(ctx, mirror, "", nil)
			if err == nil && !res.SupportsRange {
				err = fmt.Errorf("mirror %s does not support ranged requests", mirror)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[mirror] = err
				return
			}
			ok[i] = true
		}()
	}
	wg.Wait()

	var valid []string
	for i, mirror := range unique {
		if ok[i] {
			valid = append(valid, mirror)
		}
	}
	return valid, errs
}
