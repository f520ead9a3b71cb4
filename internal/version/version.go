// Package version checks for newer releases of the loader.
package version

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/surge-downloader/loader/internal/engine/single"
	"github.com/surge-downloader/loader/internal/engine/types"
)

// Version is set at build time.
var Version = "dev"

const RequestTimeout = 10 * time.Second

// ReleaseAPIURL is the endpoint describing the latest release.
var ReleaseAPIURL = "https://api.github.com/repos/surge-downloader/loader/releases/latest"

// UpdateInfo contains information about an available update
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	UpdateAvailable bool
}

// CheckForUpdate fetches the latest release description as JSON and compares
// it with currentVersion. Development builds are never checked and return
// nil, nil. Network and decoding failures are returned to the caller, which
// usually ignores them.
func CheckForUpdate(ctx context.Context, currentVersion string) (*UpdateInfo, error) {
	if currentVersion == "dev" || currentVersion == "" {
		return nil, nil
	}

	req := types.NewRequest(ReleaseAPIURL).
		AddHeader("User-Agent", "surge-loader-update-checker").
		AddHeader("Accept", "application/vnd.github.v3+json")
	value, err := single.Fetch(ctx, req,
		single.WithFormat(types.FormatJSON),
		single.WithTimeout(RequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("update check: %w", err)
	}

	release, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("update check: %w: release is not an object", types.ErrParse)
	}
	tag, _ := release["tag_name"].(string)
	if tag == "" {
		return nil, fmt.Errorf("update check: %w: missing tag_name", types.ErrParse)
	}
	htmlURL, _ := release["html_url"].(string)

	return &UpdateInfo{
		CurrentVersion:  currentVersion,
		LatestVersion:   tag,
		ReleaseURL:      htmlURL,
		UpdateAvailable: isNewerVersion(normalizeVersion(tag), normalizeVersion(currentVersion)),
	}, nil
}

func normalizeVersion(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), "v")
}

// isNewerVersion compares MAJOR.MINOR.PATCH strings.
func isNewerVersion(latest, current string) bool {
	l, c := parseVersion(latest), parseVersion(current)
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

// parseVersion ignores pre-release and build suffixes.
func parseVersion(version string) [3]int {
	var parts [3]int
	segments := strings.SplitN(version, ".", 3)
	for i, seg := range segments {
		if idx := strings.IndexAny(seg, "-+"); idx != -1 {
			seg = seg[:idx]
		}
		parts[i], _ = strconv.Atoi(seg)
	}
	return parts
}
