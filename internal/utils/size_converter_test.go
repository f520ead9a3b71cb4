package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertBytesToHumanReadable(t *testing.T) {
	cases := map[int64]string{
		0:                     "0 B",
		1023:                  "1023 B",
		1024:                  "1.0 KB",
		1025:                  "1.0 KB",
		16 * 1024:             "16.0 KB",
		1023 * 1024:           "1023.0 KB",
		1024 * 1024:           "1.0 MB",
		1536 * 1024:           "1.5 MB",
		1500000000:            "1.4 GB",
		1 << 40:               "1.0 TB",
		1 << 50:               "1.0 PB",
		3 << 50:               "3.0 PB",
		int64(2.5 * (1 << 30)): "2.5 GB",
	}
	for in, want := range cases {
		assert.Equal(t, want, ConvertBytesToHumanReadable(in), "bytes=%d", in)
	}
}

func TestEnsureAbsPath(t *testing.T) {
	assert.Equal(t, "/already/abs", EnsureAbsPath("/already/abs"))

	got := EnsureAbsPath("relative/file.bin")
	assert.True(t, filepath.IsAbs(got), got)
	assert.Equal(t, "file.bin", filepath.Base(got))
}
