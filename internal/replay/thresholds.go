package replay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// LoadThresholds reads a YAML file holding a top-level thresholds
// mapping. The result comes back unvalidated so callers can surface
// ConfigError details themselves.
func LoadThresholds(path string) (classify.Thresholds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return classify.Thresholds{}, err
	}
	var doc struct {
		Thresholds *classify.Thresholds `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return classify.Thresholds{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Thresholds == nil {
		return classify.Thresholds{}, fmt.Errorf("%s: no thresholds mapping", path)
	}
	return *doc.Thresholds, nil
}
