package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const partSuffix = ".part"

// resolveOutputPath picks where a resource is saved. output may name a file
// or an existing directory (or end in a separator); when empty the file goes
// to defaultDir.
func resolveOutputPath(output, defaultDir, filename string) string {
	filename = sanitizeFilename(filename)
	if output == "" {
		if defaultDir == "" {
			defaultDir = "."
		}
		return filepath.Join(defaultDir, filename)
	}
	if strings.HasSuffix(output, string(os.PathSeparator)) || strings.HasSuffix(output, "/") {
		return filepath.Join(output, filename)
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filename)
	}
	return output
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "download.bin"
	}
	return name
}

// uniqueFilePath returns path, or path with a "(n)" counter appended when
// the file or its partial exists.
func uniqueFilePath(path string) string {
	if !exists(path) && !exists(path+partSuffix) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	base := name
	counter := 1
	cleanName := strings.TrimSpace(name)
	if len(cleanName) > 3 && cleanName[len(cleanName)-1] == ')' {
		if openParen := strings.LastIndexByte(cleanName, '('); openParen != -1 {
			if num, err := strconv.Atoi(cleanName[openParen+1 : len(cleanName)-1]); err == nil && num > 0 {
				base = cleanName[:openParen]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 100; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, counter+i, ext))
		if !exists(candidate) && !exists(candidate+partSuffix) {
			return candidate
		}
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// saveOutput writes data to path under an advisory lock on path+".lock", so
// two loader processes never write the same file. The data lands in a
// ".part" file first and is renamed into place.
func saveOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("%s is being written by another process", path)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}()

	tempPath := path + partSuffix
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}
