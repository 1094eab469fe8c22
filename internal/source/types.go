package source

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// #region errors

var (
	// ErrDatasetRoot means the dataset directory does not exist. Fatal at startup.
	ErrDatasetRoot = errors.New("dataset root not found")

	// ErrUnknownRecord means the requested sample token is not in the tables.
	ErrUnknownRecord = errors.New("unknown record")
)

// #endregion errors

// #region config

// DefaultCameras is the front-hemisphere camera order.
var DefaultCameras = []string{"CAM_FRONT_LEFT", "CAM_FRONT", "CAM_FRONT_RIGHT"}

// Config describes where the dataset lives and how views are prepared.
type Config struct {
	Root        string
	Version     string
	Cameras     []string
	MaxDim      int // views are fit into MaxDim x MaxDim
	JPEGQuality int
}

// DefaultConfig returns dataset defaults.
// Reads from env vars: DATASET_ROOT, DATASET_VERSION, DATASET_CAMERAS (comma-separated).
func DefaultConfig() Config {
	cfg := Config{
		Root:        "nuscenes_data",
		Version:     "v1.0-trainval",
		Cameras:     append([]string(nil), DefaultCameras...),
		MaxDim:      1280,
		JPEGQuality: 95,
	}
	if v := os.Getenv("DATASET_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("DATASET_VERSION"); v != "" {
		cfg.Version = v
	}
	if v := os.Getenv("DATASET_CAMERAS"); v != "" {
		var cams []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cams = append(cams, c)
			}
		}
		if len(cams) > 0 {
			cfg.Cameras = cams
		}
	}
	if v := os.Getenv("DATASET_MAX_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxDim = n
		}
	}
	return cfg
}

// #endregion config

// #region view-bundle

// View is one prepared camera image.
type View struct {
	Camera string
	Path   string
	JPEG   []byte
	Width  int
	Height int
}

// ViewBundle holds the views that resolved for one record, in camera order.
type ViewBundle struct {
	RecordID string
	Views    []View
}

// Len returns the number of resolved views.
func (b ViewBundle) Len() int {
	return len(b.Views)
}

// Cameras lists the labels of the resolved views.
func (b ViewBundle) Cameras() []string {
	out := make([]string, len(b.Views))
	for i, v := range b.Views {
		out[i] = v.Camera
	}
	return out
}

// #endregion view-bundle
