// Package scenearchive reads pre-rendered Sentinel-2 scene chips from
// an FTP mirror. The mirror keeps a manifest at the archive root and
// one JSON raster per scene and band:
//
//	<root>/manifest.json
//	<root>/<scene path>/<band>.json
package scenearchive

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/resilience"
)

// Client defines the archive operations used by this application.
type Client interface {
	// SearchScenes filters the archive manifest by bounding box, time
	// window and cloud fraction.
	SearchScenes(ctx context.Context, q Query) ([]Scene, error)
	// FetchChip loads one stored band raster and resamples it onto a
	// width x height grid covering the bounding box.
	FetchChip(ctx context.Context, req ChipRequest) (*Chip, error)
}

// Query filters manifest entries. BBox is minLon, minLat, maxLon,
// maxLat in WGS84. MaxCloudFraction is in [0,1].
type Query struct {
	BBox             [4]float64
	From             time.Time
	To               time.Time
	MaxCloudFraction float64
}

// Scene is one manifest entry. Path points at the scene directory
// relative to the archive root.
type Scene struct {
	ID            string     `json:"id"`
	AcquiredAt    time.Time  `json:"acquired_at"`
	CloudFraction float64    `json:"cloud_fraction"`
	BBox          [4]float64 `json:"bbox"`
	Path          string     `json:"path"`
}

type manifest struct {
	Scenes []Scene `json:"scenes"`
}

// ChipRequest asks for a single band resampled onto the caller's grid.
type ChipRequest struct {
	SceneID string
	Band    string
	BBox    [4]float64
	Width   int
	Height  int
}

// Chip is a row-major raster starting at the northwest corner. Mask
// marks cells inside the stored scene footprint.
type Chip struct {
	Values []float64
	Mask   []bool
}

// sceneRaster is the stored per-band file format.
type sceneRaster struct {
	BBox   [4]float64 `json:"bbox"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Values []float64  `json:"values"`
	Mask   []bool     `json:"mask"`
}

// Options configures the archive client.
type Options struct {
	Host     string // host or host:port, port 21 when omitted
	Root     string // archive root directory on the server
	User     string
	Password string
	Timeout  time.Duration

	// Retry bounds transient-failure retries per file transfer. The
	// zero value uses the default policy.
	Retry resilience.RetryConfig
}

type ftpClient struct {
	opts Options

	mu   sync.Mutex
	byID map[string]Scene
}

// NewClient creates an archive client. Anonymous login is used unless
// credentials are set.
func NewClient(opts Options) Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("scenearchive", "retrieve")
	}
	opts.Host = hostWithPort(opts.Host)
	return &ftpClient{opts: opts, byID: make(map[string]Scene)}
}

// hostWithPort appends the default FTP port when the host has none.
func hostWithPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "21")
	}
	return host
}

// retrieve downloads one file, retrying transient transport failures.
// FTP protocol errors such as a missing file fail immediately.
func (c *ftpClient) retrieve(ctx context.Context, filePath string) ([]byte, error) {
	return resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return c.retrieveOnce(ctx, filePath)
	})
}

// retrieveOnce downloads one file over a fresh FTP connection.
func (c *ftpClient) retrieveOnce(ctx context.Context, filePath string) ([]byte, error) {
	zap.L().Debug("scenearchive: retrieving",
		zap.String("host", c.opts.Host),
		zap.String("path", filePath))

	conn, err := ftp.Dial(c.opts.Host, ftp.DialWithTimeout(c.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "scenearchive: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(c.opts.User, c.opts.Password); err != nil {
		return nil, eris.Wrap(err, "scenearchive: ftp login")
	}

	resp, err := conn.Retr(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "scenearchive: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "scenearchive: read ftp response")
	}
	return data, nil
}

// refresh reloads the manifest and rebuilds the scene index.
func (c *ftpClient) refresh(ctx context.Context) ([]Scene, error) {
	data, err := c.retrieve(ctx, path.Join(c.opts.Root, "manifest.json"))
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "scenearchive: unmarshal manifest")
	}

	c.mu.Lock()
	c.byID = make(map[string]Scene, len(m.Scenes))
	for _, s := range m.Scenes {
		c.byID[s.ID] = s
	}
	c.mu.Unlock()

	return m.Scenes, nil
}

func intersects(a, b [4]float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

func (c *ftpClient) SearchScenes(ctx context.Context, q Query) ([]Scene, error) {
	scenes, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.AcquiredAt.Before(q.From) || s.AcquiredAt.After(q.To) {
			continue
		}
		if q.MaxCloudFraction > 0 && s.CloudFraction > q.MaxCloudFraction {
			continue
		}
		if !intersects(s.BBox, q.BBox) {
			continue
		}
		matched = append(matched, s)
	}
	return matched, nil
}

// lookup resolves a scene ID, reloading the manifest once on a miss.
func (c *ftpClient) lookup(ctx context.Context, sceneID string) (Scene, error) {
	c.mu.Lock()
	s, ok := c.byID[sceneID]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	if _, err := c.refresh(ctx); err != nil {
		return Scene{}, err
	}

	c.mu.Lock()
	s, ok = c.byID[sceneID]
	c.mu.Unlock()
	if !ok {
		return Scene{}, eris.Errorf("scenearchive: unknown scene %q", sceneID)
	}
	return s, nil
}

func (c *ftpClient) FetchChip(ctx context.Context, req ChipRequest) (*Chip, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, eris.Errorf("scenearchive: chip dimensions %dx%d out of range", req.Width, req.Height)
	}

	scene, err := c.lookup(ctx, req.SceneID)
	if err != nil {
		return nil, err
	}

	rasterPath := path.Join(c.opts.Root, scene.Path, req.Band+".json")
	data, err := c.retrieve(ctx, rasterPath)
	if err != nil {
		return nil, err
	}

	var sr sceneRaster
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, eris.Wrap(err, "scenearchive: unmarshal raster")
	}
	if err := sr.validate(); err != nil {
		return nil, eris.Wrap(err, rasterPath)
	}

	return resample(&sr, req.BBox, req.Width, req.Height), nil
}

func (sr *sceneRaster) validate() error {
	if sr.Width <= 0 || sr.Height <= 0 {
		return eris.Errorf("scenearchive: raster dimensions %dx%d out of range", sr.Width, sr.Height)
	}
	if len(sr.Values) != sr.Width*sr.Height {
		return eris.Errorf("scenearchive: raster has %d values, want %d", len(sr.Values), sr.Width*sr.Height)
	}
	if sr.Mask != nil && len(sr.Mask) != len(sr.Values) {
		return eris.Errorf("scenearchive: raster mask length %d does not match values length %d",
			len(sr.Mask), len(sr.Values))
	}
	if sr.BBox[2] <= sr.BBox[0] || sr.BBox[3] <= sr.BBox[1] {
		return eris.New("scenearchive: raster bbox is degenerate")
	}
	return nil
}

// resample maps each target cell center to its nearest stored pixel.
// Cells outside the stored footprint stay masked out.
func resample(sr *sceneRaster, bbox [4]float64, width, height int) *Chip {
	values := make([]float64, width*height)
	mask := make([]bool, width*height)

	lonStep := (bbox[2] - bbox[0]) / float64(width)
	latStep := (bbox[3] - bbox[1]) / float64(height)
	srcLonStep := (sr.BBox[2] - sr.BBox[0]) / float64(sr.Width)
	srcLatStep := (sr.BBox[3] - sr.BBox[1]) / float64(sr.Height)

	for r := 0; r < height; r++ {
		lat := bbox[3] - (float64(r)+0.5)*latStep
		for col := 0; col < width; col++ {
			lon := bbox[0] + (float64(col)+0.5)*lonStep

			sc := int((lon - sr.BBox[0]) / srcLonStep)
			srow := int((sr.BBox[3] - lat) / srcLatStep)
			if sc < 0 || sc >= sr.Width || srow < 0 || srow >= sr.Height {
				continue
			}

			si := srow*sr.Width + sc
			i := r*width + col
			values[i] = sr.Values[si]
			mask[i] = sr.Mask == nil || sr.Mask[si]
		}
	}
	return &Chip{Values: values, Mask: mask}
}
