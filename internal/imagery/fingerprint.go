package imagery

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/terralens/landcover-cli/internal/geometry"
)

// Fingerprint derives the deterministic composite cache key for an AOI under
// a fetch window and policy. The geometry contributes through its EWKB
// encoding (SRID 4326, NDR byte order), a stable byte form rather than a
// float-formatting artifact, so equal rings always hash equally.
func Fingerprint(aoi *geometry.AOI, win Window, maxCloudFraction, scaleM float64) (string, error) {
	flat := make([]float64, 0, len(aoi.Ring)*2)
	for _, p := range aoi.Ring {
		flat = append(flat, p.Lon(), p.Lat())
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)

	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return "", eris.Wrap(err, "imagery: encode fingerprint geometry")
	}

	h := sha256.New()
	h.Write(data)
	_ = binary.Write(h, binary.LittleEndian, win.From.Unix())
	_ = binary.Write(h, binary.LittleEndian, win.To.Unix())
	_ = binary.Write(h, binary.LittleEndian, maxCloudFraction)
	_ = binary.Write(h, binary.LittleEndian, scaleM)

	return hex.EncodeToString(h.Sum(nil)), nil
}
