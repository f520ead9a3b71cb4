package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// job is one resource to fetch.
type job struct {
	URL     string
	Output  string // file or directory; empty means the default directory
	Format  types.DataFormat
	Headers map[string]string
}

// manifestEntry is one item of a YAML batch manifest.
type manifestEntry struct {
	URL     string            `yaml:"url"`
	Output  string            `yaml:"output,omitempty"`
	Format  string            `yaml:"format,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// manifest is the YAML batch file. A bare list of entries is accepted too.
type manifest struct {
	Output  string            `yaml:"output,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Items   []manifestEntry   `yaml:"items"`
}

// readBatchFile loads jobs from path. Files ending in .yaml or .yml are
// manifests; anything else is a list of URLs, one per line, with # comments.
func readBatchFile(path string) ([]job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseManifest(data)
	default:
		return parseURLList(data)
	}
}

func parseURLList(data []byte) ([]job, error) {
	var jobs []job
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			jobs = append(jobs, job{URL: line})
		}
	}
	return jobs, scanner.Err()
}

func parseManifest(data []byte) ([]job, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		var items []manifestEntry
		if listErr := yaml.Unmarshal(data, &items); listErr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
		}
		m = manifest{Items: items}
	}

	jobs := make([]job, 0, len(m.Items))
	for i, item := range m.Items {
		if strings.TrimSpace(item.URL) == "" {
			return nil, fmt.Errorf("%w: item %d has no url", types.ErrInvalidRequest, i+1)
		}
		format, err := types.ParseDataFormat(item.Format)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		j := job{
			URL:     strings.TrimSpace(item.URL),
			Output:  item.Output,
			Format:  format,
			Headers: mergeHeaders(m.Headers, item.Headers),
		}
		if j.Output == "" {
			j.Output = m.Output
		} else if m.Output != "" && !filepath.IsAbs(j.Output) {
			j.Output = filepath.Join(m.Output, j.Output)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// mergeHeaders returns base overlaid with override; nil when both are empty.
func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// parseHeaderFlags turns "Name: value" flags into a map.
func parseHeaderFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q is not \"Name: value\"", types.ErrInvalidRequest, v)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
