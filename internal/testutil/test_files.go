package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
)

// ZipFile is one entry for ZipData.
type ZipFile struct {
	Name string
	Body []byte
}

// ZipData builds an in-memory zip archive with deflated entries.
func ZipData(files ...ZipFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileMismatchError reports the first difference between a file and the
// expected content.
type FileMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
	Offset   int64 // -1 when only the sizes differ
}

func (e *FileMismatchError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("file content mismatch: %s at offset %d", e.Path, e.Offset)
	}
	return fmt.Sprintf("file size mismatch: %s: expected %d, got %d", e.Path, e.Expected, e.Actual)
}

// VerifyFileContent checks that path holds exactly expected.
func VerifyFileContent(path string, expected []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) != len(expected) {
		return &FileMismatchError{Path: path, Expected: int64(len(expected)), Actual: int64(len(data)), Offset: -1}
	}
	for i := range data {
		if data[i] != expected[i] {
			return &FileMismatchError{Path: path, Expected: int64(len(expected)), Actual: int64(len(data)), Offset: int64(i)}
		}
	}
	return nil
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
