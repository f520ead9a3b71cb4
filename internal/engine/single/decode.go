package single

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"gopkg.in/yaml.v3"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// decode turns a completed payload into the value for format. Text and
// documents are converted to UTF-8 using the response Content-Type charset.
func decode(format types.DataFormat, body []byte, contentType string) (any, error) {
	switch format {
	case types.FormatBinary:
		return body, nil
	case types.FormatText:
		r, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err != nil {
			return string(body), nil
		}
		text, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
		}
		return string(text), nil
	case types.FormatJSON:
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: json: %v", types.ErrParse, err)
		}
		return v, nil
	case types.FormatYAML:
		var v any
		if err := yaml.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", types.ErrParse, err)
		}
		return v, nil
	case types.FormatDocument:
		var r io.Reader = bytes.NewReader(body)
		if cr, err := charset.NewReader(r, contentType); err == nil {
			r = cr
		}
		doc, err := html.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("%w: document: %v", types.ErrParse, err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidFormat, int(format))
	}
}
