package utility

import (
	"context"
	"net/url"

	"github.com/tombee/chord/pkg/action"
)

// urlCodec percent-encodes or decodes config "raw". Config "by" is
// "encode" (the default) or "decode"; "path" encodes a path segment.
func urlCodec(_ context.Context, arg action.RunArg) (interface{}, error) {
	raw, err := renderedConfig(KindURL, arg)
	if err != nil {
		return nil, err
	}
	cfg := action.Config(raw)

	if _, ok := cfg["raw"]; !ok {
		return nil, missing(KindURL, "raw")
	}
	text := cfg.String("raw", "")

	switch by := cfg.String("by", "encode"); by {
	case "encode":
		return url.QueryEscape(text), nil
	case "path":
		return url.PathEscape(text), nil
	case "decode":
		out, err := url.QueryUnescape(text)
		if err != nil {
			return nil, invalid(KindURL, "cannot decode %q: %v", text, err)
		}
		return out, nil
	default:
		return nil, unsupported(KindURL, by)
	}
}
