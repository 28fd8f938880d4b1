package catalog

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/vaheed/fresco/pkg/types"
)

// FS exposes the embedded catalog data (default module wiring) used by the
// API and by frescoctl. The root of this filesystem is the pkg/catalog
// directory.
//
//go:embed modules.json
var FS embed.FS

// DefaultModule returns the module configuration shipped with the binary.
// It is installed on first boot when the store has no module row yet.
func DefaultModule() (types.ModuleConfig, error) {
	raw, err := FS.ReadFile("modules.json")
	if err != nil {
		return types.ModuleConfig{}, fmt.Errorf("read embedded modules.json: %w", err)
	}
	var cfg types.ModuleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return types.ModuleConfig{}, fmt.Errorf("parse embedded modules.json: %w", err)
	}
	return cfg, nil
}
