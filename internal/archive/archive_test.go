package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/loader/internal/engine/resumable"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/testutil"
)

type file struct {
	name   string
	body   string
	method uint16
}

func build(t *testing.T, files ...file) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: f.method})
		require.NoError(t, err)
		if f.body != "" {
			_, err = w.Write([]byte(f.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestOpen_Entries(t *testing.T) {
	data := build(t,
		file{name: "docs/", method: zip.Store},
		file{name: "docs/readme.md", body: "# readme", method: zip.Deflate},
		file{name: "a.txt", body: "alpha", method: zip.Store},
	)

	idx, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	entries := idx.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.Equal(t, "docs", entries[1].Path)
	assert.True(t, entries[1].Dir)
	assert.Equal(t, "docs/readme.md", entries[2].Path)
	assert.Equal(t, int64(len("# readme")), entries[2].Size)

	e, ok := idx.Lookup("/docs/readme.md")
	require.True(t, ok)
	assert.Equal(t, zip.Deflate, e.Method)
	_, ok = idx.Lookup("missing")
	assert.False(t, ok)

	span, ok := idx.Span("a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", string(span), "stored entries span their raw bytes")
	_, ok = idx.Span("docs")
	assert.False(t, ok)
}

func TestOpen_NotArchive(t *testing.T) {
	_, err := Open([]byte("definitely not a zip"))
	require.ErrorIs(t, err, ErrNotArchive)
	assert.ErrorIs(t, err, types.ErrParse)
	assert.Equal(t, types.CodeParseError, types.ErrorCode(err))
}

func TestIndex_OpenAsync(t *testing.T) {
	data := build(t,
		file{name: "one.txt", body: "first", method: zip.Deflate},
		file{name: "dir/", method: zip.Store},
	)
	idx, err := Open(data)
	require.NoError(t, err)

	select {
	case res := <-idx.Open(context.Background(), "one.txt"):
		require.NoError(t, res.Err)
		assert.Equal(t, "one.txt", res.Path)
		assert.Equal(t, "first", string(res.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}

	res := <-idx.Open(context.Background(), "nope")
	assert.ErrorIs(t, res.Err, ErrNotFound)

	res = <-idx.Open(context.Background(), "dir")
	assert.ErrorIs(t, res.Err, ErrDirectory)

	ch := idx.Open(context.Background(), "one.txt")
	<-ch
	_, open := <-ch
	assert.False(t, open, "channel closes after the single result")
}

func TestIndex_ReadFileCanceled(t *testing.T) {
	data := build(t, file{name: "big.bin", body: string(bytes.Repeat([]byte("x"), 1<<16)), method: zip.Deflate})
	idx, err := Open(data)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.ReadFile(ctx, "big.bin")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_FromResumableTransfer(t *testing.T) {
	data := build(t,
		file{name: "payload/data.bin", body: string(testutil.PatternData(50 * types.KB)), method: zip.Store},
		file{name: "payload/notes.txt", body: "notes", method: zip.Deflate},
	)
	server := testutil.NewMockServerT(t, data)

	l := resumable.New(resumable.WithChunkSize(16 * types.KB))
	require.NoError(t, l.Load(types.NewRequest(server.URL())))
	require.Eventually(t, func() bool { return l.State() == types.StateComplete }, 10*time.Second, 10*time.Millisecond)

	idx, err := Open(l.Data())
	require.NoError(t, err)
	res := <-idx.Open(context.Background(), "payload/data.bin")
	require.NoError(t, res.Err)
	assert.Equal(t, testutil.PatternData(50*types.KB), res.Data)
}
