package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General      GeneralSettings      `json:"general"`
	Network      NetworkSettings      `json:"network"`
	Connectivity ConnectivitySettings `json:"connectivity"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	WarnOnDuplicate    bool   `json:"warn_on_duplicate"`
	SkipUpdateCheck    bool   `json:"skip_update_check"`
	RecordHistory      bool   `json:"record_history"`
	LogRetentionCount  int    `json:"log_retention_count"`
}

// NetworkSettings contains HTTP request parameters.
type NetworkSettings struct {
	UserAgent      string            `json:"user_agent"`
	ProxyURL       string            `json:"proxy_url"`
	ChunkSize      int64             `json:"chunk_size"`
	ReadBufferSize int               `json:"read_buffer_size"`
	RequestTimeout time.Duration     `json:"request_timeout"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// ConnectivitySettings controls automatic recovery after the network drops.
type ConnectivitySettings struct {
	AutoResume    bool          `json:"auto_resume"`
	ProbeAddress  string        `json:"probe_address"`
	ProbeInterval time.Duration `json:"probe_interval"`
}

// UnmarshalJSON implements custom JSON unmarshalling for Settings.
// Files written before the "connectivity" category kept auto_resume under
// "general"; it is carried over when the new key is absent.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type Alias Settings
	if err := json.Unmarshal(data, (*Alias)(s)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if _, hasConnectivity := raw["connectivity"]; !hasConnectivity {
		if general, ok := raw["general"]; ok {
			var legacy struct {
				AutoResume *bool `json:"auto_resume"`
			}
			if err := json.Unmarshal(general, &legacy); err == nil && legacy.AutoResume != nil {
				s.Connectivity.AutoResume = *legacy.AutoResume
			}
		}
	}
	return nil
}

// SettingMeta provides metadata for a single setting.
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Directory for saved resources. Leave empty to use current directory.", Type: "string"},
			{Key: "warn_on_duplicate", Label: "Warn on Duplicate", Description: "Warn when a URL already has a completed history record.", Type: "bool"},
			{Key: "skip_update_check", Label: "Skip Update Check", Description: "Disable the check for new versions.", Type: "bool"},
			{Key: "record_history", Label: "Record History", Description: "Keep a ledger of finished transfers.", Type: "bool"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
		},
		"Network": {
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP/HTTPS proxy URL (e.g. http://127.0.0.1:1700). Leave empty to use system default.", Type: "string"},
			{Key: "chunk_size", Label: "Chunk Size", Description: "Bytes requested per ranged request (4KB-64MB).", Type: "int64"},
			{Key: "read_buffer_size", Label: "Read Buffer Size", Description: "Body read size in bytes; one progress event per read.", Type: "int"},
			{Key: "request_timeout", Label: "Request Timeout", Description: "Timeout for whole-resource loads (e.g., 30s). 0 disables.", Type: "duration"},
		},
		"Connectivity": {
			{Key: "auto_resume", Label: "Auto Resume", Description: "Resume interrupted transfers when the network comes back.", Type: "bool"},
			{Key: "probe_address", Label: "Probe Address", Description: "host:port dialled to detect connectivity.", Type: "string"},
			{Key: "probe_interval", Label: "Probe Interval", Description: "How often connectivity is checked (e.g., 2s).", Type: "duration"},
		},
	}
}

// CategoryOrder returns the display order of categories.
func CategoryOrder() []string {
	return []string{"General", "Network", "Connectivity"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	defaultDir := ""
	if xdgDir := os.Getenv("XDG_DOWNLOAD_DIR"); xdgDir != "" {
		if info, err := os.Stat(xdgDir); err == nil && info.IsDir() {
			defaultDir = xdgDir
		}
	}
	if defaultDir == "" && homeDir != "" {
		downloadsDir := filepath.Join(homeDir, "Downloads")
		if info, err := os.Stat(downloadsDir); err == nil && info.IsDir() {
			defaultDir = downloadsDir
		}
	}

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			WarnOnDuplicate:    true,
			RecordHistory:      true,
			LogRetentionCount:  5,
		},
		Network: NetworkSettings{
			UserAgent:      "", // Empty means use default UA
			ChunkSize:      types.DefaultChunkSize,
			ReadBufferSize: types.ReadBuffer,
			RequestTimeout: 30 * time.Second,
		},
		Connectivity: ConnectivitySettings{
			AutoResume:    true,
			ProbeAddress:  types.DefaultProbeAddress,
			ProbeInterval: types.DefaultProbeInterval,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetLoaderDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(GetSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// ToRuntimeConfig converts Settings to the engine RuntimeConfig.
func (s *Settings) ToRuntimeConfig() *types.RuntimeConfig {
	var headers map[string]string
	if len(s.Network.Headers) > 0 {
		headers = make(map[string]string, len(s.Network.Headers))
		for k, v := range s.Network.Headers {
			headers[k] = v
		}
	}
	return &types.RuntimeConfig{
		UserAgent:      s.Network.UserAgent,
		ProxyURL:       s.Network.ProxyURL,
		ChunkSize:      s.Network.ChunkSize,
		ReadBufferSize: s.Network.ReadBufferSize,
		RequestTimeout: s.Network.RequestTimeout,
		Headers:        headers,
		AutoResume:     s.Connectivity.AutoResume,
		ProbeAddress:   s.Connectivity.ProbeAddress,
		ProbeInterval:  s.Connectivity.ProbeInterval,
	}
}
