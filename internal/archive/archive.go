// Package archive indexes a completed zip payload and resolves its entries
// to their content.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/surge-downloader/loader/internal/engine/types"
)

var (
	// ErrNotArchive wraps types.ErrParse so callers can treat it like any
	// other payload decoding failure.
	ErrNotArchive = fmt.Errorf("%w: not a zip archive", types.ErrParse)
	ErrNotFound   = errors.New("archive: entry not found")
	ErrDirectory  = errors.New("archive: entry is a directory")
)

const maxPrealloc = 16 << 20

// Entry describes one file or directory inside the archive.
type Entry struct {
	Path           string
	Dir            bool
	Size           int64 // uncompressed
	CompressedSize int64
	Offset         int64 // start of the compressed data in the payload
	Modified       time.Time
	Method         uint16
}

// Result is delivered by Index.Open.
type Result struct {
	Path string
	Data []byte
	Err  error
}

// Index maps entry paths to their location in a payload.
type Index struct {
	data    []byte
	entries []Entry
	files   map[string]*zip.File
}

// Open parses the central directory of data.
func Open(data []byte) (*Index, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}

	idx := &Index{
		data:  data,
		files: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := clean(f.Name)
		if name == "" {
			continue
		}
		offset, err := f.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotArchive, f.Name, err)
		}
		idx.files[name] = f
		idx.entries = append(idx.entries, Entry{
			Path:           name,
			Dir:            f.FileInfo().IsDir(),
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			Offset:         offset,
			Modified:       f.Modified,
			Method:         f.Method,
		})
	}
	slices.SortFunc(idx.entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return idx, nil
}

func clean(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "." {
		return ""
	}
	return name
}

// Entries returns every entry sorted by path.
func (i *Index) Entries() []Entry {
	return slices.Clone(i.entries)
}

// Len returns the number of entries.
func (i *Index) Len() int {
	return len(i.entries)
}

// Lookup returns the entry stored under p.
func (i *Index) Lookup(p string) (Entry, bool) {
	p = clean(p)
	n, ok := slices.BinarySearchFunc(i.entries, p, func(e Entry, target string) int {
		return strings.Compare(e.Path, target)
	})
	if !ok {
		return Entry{}, false
	}
	return i.entries[n], true
}

// Span returns the stored, possibly compressed, bytes of the entry at p as a
// slice of the original payload.
func (i *Index) Span(p string) ([]byte, bool) {
	e, ok := i.Lookup(p)
	if !ok || e.Dir {
		return nil, false
	}
	end := e.Offset + e.CompressedSize
	if e.Offset < 0 || end > int64(len(i.data)) {
		return nil, false
	}
	return i.data[e.Offset:end:end], true
}

// Open decompresses the entry at p on its own goroutine. The channel
// receives exactly one Result and is then closed.
func (i *Index) Open(ctx context.Context, p string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		data, err := i.ReadFile(ctx, p)
		out <- Result{Path: clean(p), Data: data, Err: err}
	}()
	return out
}

// ReadFile decompresses the entry at p.
func (i *Index) ReadFile(ctx context.Context, p string) ([]byte, error) {
	name := clean(p)
	f, ok := i.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if f.FileInfo().IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectory, p)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParse, name, err)
	}
	defer func() { _ = rc.Close() }()

	buf := bytes.NewBuffer(make([]byte, 0, min(f.UncompressedSize64, maxPrealloc)))
	if _, err := io.Copy(buf, ctxReader{ctx: ctx, r: rc}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParse, name, err)
	}
	return buf.Bytes(), nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
