package types

import (
	"fmt"
	"strings"
)

// DataFormat selects how a whole-resource loader post-processes its payload.
type DataFormat int

const (
	FormatBinary DataFormat = iota
	FormatText
	FormatJSON
	FormatYAML
	FormatDocument
)

var formatNames = map[DataFormat]string{
	FormatBinary:   "binary",
	FormatText:     "text",
	FormatJSON:     "json",
	FormatYAML:     "yaml",
	FormatDocument: "document",
}

func (f DataFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Valid reports whether f is one of the declared formats.
func (f DataFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParseDataFormat maps a format name to its DataFormat.
func ParseDataFormat(name string) (DataFormat, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "binary", "bytes":
		return FormatBinary, nil
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "document", "html", "xml":
		return FormatDocument, nil
	}
	return FormatBinary, fmt.Errorf("%w: %q", ErrInvalidFormat, name)
}
