package utility

import (
	"context"

	"github.com/google/uuid"

	"github.com/tombee/chord/pkg/action"
)

// newID returns a fresh UUID. Config "version" selects 4 (default) or 7.
func newID(_ context.Context, arg action.RunArg) (interface{}, error) {
	raw, err := renderedConfig(KindUUID, arg)
	if err != nil {
		return nil, err
	}

	version, err := action.Config(raw).Int("version", 4)
	if err != nil {
		return nil, invalid(KindUUID, "invalid version: %v", err)
	}

	switch version {
	case 4:
		return uuid.NewString(), nil
	case 7:
		id, err := uuid.NewV7()
		if err != nil {
			return nil, invalid(KindUUID, "failed to generate id: %v", err)
		}
		return id.String(), nil
	default:
		return nil, unsupported(KindUUID, "version")
	}
}
