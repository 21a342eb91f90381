package config

import (
	"context"
)

// Loader provides configuration overlays. It abstracts the source of the
// settings to allow for different implementations like files or remote
// configuration services.
type Loader interface {
	// Load returns the settings as a nested map keyed like the yaml tags of
	// Config. Keys that are absent keep their current value.
	Load(ctx context.Context) (map[string]any, error)
}
