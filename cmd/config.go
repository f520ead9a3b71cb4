package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/loader/internal/config"
	"github.com/surge-downloader/loader/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(cmd)
		defer utils.CloseDebug()
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(config.GetSettingsPath()))
		return printSettings(cmd.OutOrStdout(), settings)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(cmd)
		defer utils.CloseDebug()
		updated, err := applySetting(settings, args[0], args[1])
		if err != nil {
			return err
		}
		if err := config.SaveSettings(updated); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", successStyle.Render("Set"), args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// settingsSection maps a metadata category to its JSON object key.
func settingsSection(category string) string {
	return strings.ToLower(category)
}

func settingsMap(s *config.Settings) (map[string]map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func printSettings(w io.Writer, s *config.Settings) error {
	m, err := settingsMap(s)
	if err != nil {
		return err
	}
	meta := config.GetSettingsMetadata()
	for _, category := range config.CategoryOrder() {
		fmt.Fprintln(w, headerStyle.Render(category))
		section := m[settingsSection(category)]
		for _, sm := range meta[category] {
			fmt.Fprintf(w, "  %-22s %s\n", sm.Key, formatSetting(sm, section[sm.Key]))
		}
	}
	return nil
}

func formatSetting(sm config.SettingMeta, v any) string {
	if v == nil {
		return dimStyle.Render("(unset)")
	}
	switch sm.Type {
	case "duration":
		if n, ok := v.(float64); ok {
			return time.Duration(n).String()
		}
	case "int", "int64":
		if n, ok := v.(float64); ok {
			return strconv.FormatInt(int64(n), 10)
		}
	case "string":
		if s, ok := v.(string); ok && s == "" {
			return dimStyle.Render("(default)")
		}
	}
	return fmt.Sprint(v)
}

// applySetting returns a copy of s with key set to the parsed value.
func applySetting(s *config.Settings, key, value string) (*config.Settings, error) {
	var (
		meta     config.SettingMeta
		category string
	)
	for _, cat := range config.CategoryOrder() {
		for _, sm := range config.GetSettingsMetadata()[cat] {
			if sm.Key == key {
				meta, category = sm, cat
			}
		}
	}
	if category == "" {
		return nil, fmt.Errorf("unknown setting %q", key)
	}

	var parsed any
	var err error
	switch meta.Type {
	case "bool":
		parsed, err = strconv.ParseBool(value)
	case "int", "int64":
		parsed, err = strconv.ParseInt(value, 10, 64)
	case "duration":
		var d time.Duration
		d, err = time.ParseDuration(value)
		parsed = int64(d)
	default:
		parsed = value
	}
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}

	m, err := settingsMap(s)
	if err != nil {
		return nil, err
	}
	m[settingsSection(category)][key] = parsed

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	updated := config.DefaultSettings()
	if err := json.Unmarshal(raw, updated); err != nil {
		return nil, err
	}
	return updated, nil
}
