package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/model"
)

// WriteGeoJSON writes one FeatureCollection file per class into dir, named
// <slug>_<class>.geojson. Empty layers are written too, so consumers always
// find all four files. Returns the written paths in class order.
func WriteGeoJSON(dir string, result *model.AnalysisResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", dir)
	}

	slug := slugify(result.Summary.Name)
	paths := make([]string, 0, len(model.Classes()))

	for _, class := range model.Classes() {
		fc := result.Layers[class]
		if fc == nil {
			return nil, eris.Errorf("export: missing layer %s", class)
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			return nil, eris.Wrapf(err, "export: encode %s layer", class)
		}

		path := filepath.Join(dir, slug+"_"+string(class)+".geojson")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, eris.Wrapf(err, "export: write %s", path)
		}

		zap.L().Debug("export: wrote geojson layer",
			zap.String("class", string(class)),
			zap.Int("features", len(fc.Features)),
			zap.String("path", path),
		)
		paths = append(paths, path)
	}

	return paths, nil
}
