// Package source reads a nuScenes-style table directory and prepares camera
// views for the backend.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// #region table-rows

type sampleRow struct {
	Token      string `json:"token"`
	SceneToken string `json:"scene_token"`
	Next       string `json:"next"`
}

type sampleDataRow struct {
	SampleToken           string `json:"sample_token"`
	CalibratedSensorToken string `json:"calibrated_sensor_token"`
	Filename              string `json:"filename"`
	IsKeyFrame            bool   `json:"is_key_frame"`
}

type calibratedSensorRow struct {
	Token       string `json:"token"`
	SensorToken string `json:"sensor_token"`
}

type sensorRow struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

type sceneRow struct {
	Token            string `json:"token"`
	FirstSampleToken string `json:"first_sample_token"`
	Description      string `json:"description"`
}

// #endregion table-rows

// #region dataset

// Dataset is a loaded table index. Image bytes are read lazily per record.
type Dataset struct {
	cfg      Config
	samples  []sampleRow
	byToken  map[string]sampleRow
	cameras  map[string]map[string]string // sample token -> channel -> relative path
	scenes   []sceneRow
	sceneIdx map[string]sceneRow
}

// Open loads the metadata tables under <root>/<version>.
func Open(cfg Config) (*Dataset, error) {
	if info, err := os.Stat(cfg.Root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDatasetRoot, cfg.Root)
	}
	tables := filepath.Join(cfg.Root, cfg.Version)

	d := &Dataset{
		cfg:      cfg,
		byToken:  make(map[string]sampleRow),
		cameras:  make(map[string]map[string]string),
		sceneIdx: make(map[string]sceneRow),
	}

	if err := readTable(filepath.Join(tables, "sample.json"), func(r sampleRow) {
		d.samples = append(d.samples, r)
		d.byToken[r.Token] = r
	}); err != nil {
		return nil, err
	}

	if err := readTable(filepath.Join(tables, "scene.json"), func(r sceneRow) {
		d.scenes = append(d.scenes, r)
		d.sceneIdx[r.Token] = r
	}); err != nil {
		return nil, err
	}

	channels := make(map[string]string) // sensor token -> channel
	if err := readTable(filepath.Join(tables, "sensor.json"), func(r sensorRow) {
		channels[r.Token] = r.Channel
	}); err != nil {
		return nil, err
	}

	calibrated := make(map[string]string) // calibrated sensor token -> channel
	if err := readTable(filepath.Join(tables, "calibrated_sensor.json"), func(r calibratedSensorRow) {
		calibrated[r.Token] = channels[r.SensorToken]
	}); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(cfg.Cameras))
	for _, c := range cfg.Cameras {
		wanted[c] = true
	}
	if err := readTable(filepath.Join(tables, "sample_data.json"), func(r sampleDataRow) {
		if !r.IsKeyFrame {
			return
		}
		ch := calibrated[r.CalibratedSensorToken]
		if !wanted[ch] {
			return
		}
		m, ok := d.cameras[r.SampleToken]
		if !ok {
			m = make(map[string]string, len(cfg.Cameras))
			d.cameras[r.SampleToken] = m
		}
		m[ch] = r.Filename
	}); err != nil {
		return nil, err
	}

	log.Printf("[SOURCE] loaded %s: %d samples, %d scenes", cfg.Version, len(d.samples), len(d.scenes))
	return d, nil
}

// #endregion dataset

// #region ids

// IDs returns every sample token in table order.
func (d *Dataset) IDs() []string {
	out := make([]string, len(d.samples))
	for i, s := range d.samples {
		out[i] = s.Token
	}
	return out
}

// SparseIDs returns k evenly spaced samples from each scene, walking the
// scene's linked sample list. Scenes shorter than k contribute every sample.
func (d *Dataset) SparseIDs(k int) []string {
	if k <= 0 {
		return nil
	}
	var out []string
	for _, sc := range d.scenes {
		var chain []string
		seen := make(map[string]bool)
		for tok := sc.FirstSampleToken; tok != "" && !seen[tok]; {
			row, ok := d.byToken[tok]
			if !ok {
				break
			}
			seen[tok] = true
			chain = append(chain, tok)
			tok = row.Next
		}
		out = append(out, evenlySpaced(chain, k)...)
	}
	return out
}

func evenlySpaced(chain []string, k int) []string {
	n := len(chain)
	if n <= k {
		return chain
	}
	out := make([]string, 0, k)
	if k == 1 {
		return append(out, chain[0])
	}
	last := -1
	for i := 0; i < k; i++ {
		idx := i * (n - 1) / (k - 1)
		if idx == last {
			continue
		}
		last = idx
		out = append(out, chain[idx])
	}
	return out
}

// Description returns the human-readable scene description for a sample.
func (d *Dataset) Description(id string) string {
	s, ok := d.byToken[id]
	if !ok {
		return ""
	}
	return d.sceneIdx[s.SceneToken].Description
}

// Paths maps camera channel to absolute file path for a sample.
func (d *Dataset) Paths(id string) (map[string]string, error) {
	if _, ok := d.byToken[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	out := make(map[string]string, len(d.cameras[id]))
	for ch, rel := range d.cameras[id] {
		out[ch] = filepath.Join(d.cfg.Root, rel)
	}
	return out, nil
}

// #endregion ids

// #region views

// Views loads and prepares the record's camera images in camera order.
// Images that fail to load are left out; the caller applies the quorum.
func (d *Dataset) Views(id string) (ViewBundle, error) {
	paths, err := d.Paths(id)
	if err != nil {
		return ViewBundle{}, err
	}
	bundle := ViewBundle{RecordID: id}
	for _, cam := range d.cfg.Cameras {
		path, ok := paths[cam]
		if !ok {
			continue
		}
		v, err := LoadView(cam, path, d.cfg.MaxDim, d.cfg.JPEGQuality)
		if err != nil {
			log.Printf("[SOURCE] %s %s: %v", id, cam, err)
			continue
		}
		bundle.Views = append(bundle.Views, v)
	}
	return bundle, nil
}

// LoadView opens an image, fits it into maxDim x maxDim and re-encodes it as JPEG.
func LoadView(camera, path string, maxDim, quality int) (View, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return View{}, fmt.Errorf("open image: %w", err)
	}
	if maxDim > 0 {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return View{}, fmt.Errorf("encode jpeg: %w", err)
	}
	b := img.Bounds()
	return View{
		Camera: camera,
		Path:   path,
		JPEG:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// #endregion views

// #region table-reader

// readTable streams a JSON array table row by row.
func readTable[T any](path string, fn func(T)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open table %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read table %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("read table %s: %w", path, errors.New("expected JSON array"))
	}
	for dec.More() {
		var row T
		if err := dec.Decode(&row); err != nil {
			return fmt.Errorf("decode table %s: %w", path, err)
		}
		fn(row)
	}
	return nil
}

// #endregion table-reader
