// Package phantomio is the persistence collaborator for phantom
// synthesis: a push sink streaming each phase to disk as it is
// produced, a run metadata record, and a loader for the same raw
// volume format. It deliberately knows nothing about clinical imaging
// formats; inputs are expected to be pre-converted by an external
// pipeline.
//
// A volume on disk is a pair of files: a YAML header carrying the grid
// geometry and a raw little-endian float64 payload.
package phantomio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"phantom4d/pkg/grid"
)

// header is the on-disk YAML description of a raw volume or field.
type header struct {
	Kind    string     `yaml:"kind"` // intensity | label | displacement
	Shape   [3]int     `yaml:"shape"`
	Spacing [3]float64 `yaml:"spacing"`
	Origin  [3]float64 `yaml:"origin"`
	Data    string     `yaml:"data"` // raw payload filename, relative to the header
}

const (
	kindIntensity    = "intensity"
	kindLabel        = "label"
	kindDisplacement = "displacement"
)

// WriteVolume stores a volume as <path>.yaml + <path>.raw.
func WriteVolume(path string, v *grid.Volume) error {
	kind := kindIntensity
	if v.Kind == grid.Label {
		kind = kindLabel
	}
	return writeRaw(path, header{
		Kind:    kind,
		Shape:   v.Grid.Shape,
		Spacing: v.Grid.Spacing,
		Origin:  v.Grid.Origin,
	}, v.Data)
}

// WriteField stores a displacement field as <path>.yaml + <path>.raw
// with interleaved (dx,dy,dz) vectors.
func WriteField(path string, f *grid.DisplacementField) error {
	return writeRaw(path, header{
		Kind:    kindDisplacement,
		Shape:   f.Grid.Shape,
		Spacing: f.Grid.Spacing,
		Origin:  f.Grid.Origin,
	}, f.Vectors)
}

// LoadVolume reads a volume written by WriteVolume. path may point at
// the YAML header with or without the .yaml suffix.
func LoadVolume(path string) (*grid.Volume, error) {
	h, data, err := loadRaw(path)
	if err != nil {
		return nil, err
	}
	g := grid.NewGrid(h.Shape, h.Spacing, h.Origin)
	if want := g.NumVoxels(); len(data) != want {
		return nil, errors.Newf("%s: %d samples for %v grid (want %d)", path, len(data), h.Shape, want)
	}
	kind := grid.Intensity
	switch h.Kind {
	case kindIntensity:
	case kindLabel:
		kind = grid.Label
	default:
		return nil, errors.Newf("%s: unexpected kind %q for a volume", path, h.Kind)
	}
	return &grid.Volume{Grid: g, Kind: kind, Data: data}, nil
}

// LoadField reads a displacement field written by WriteField.
func LoadField(path string) (*grid.DisplacementField, error) {
	h, data, err := loadRaw(path)
	if err != nil {
		return nil, err
	}
	if h.Kind != kindDisplacement {
		return nil, errors.Newf("%s: unexpected kind %q for a displacement field", path, h.Kind)
	}
	g := grid.NewGrid(h.Shape, h.Spacing, h.Origin)
	if want := 3 * g.NumVoxels(); len(data) != want {
		return nil, errors.Newf("%s: %d components for %v grid (want %d)", path, len(data), h.Shape, want)
	}
	return &grid.DisplacementField{Grid: g, Vectors: data}, nil
}

func writeRaw(path string, h header, data []float64) error {
	base := strings.TrimSuffix(path, ".yaml")
	h.Data = filepath.Base(base) + ".raw"

	raw, err := os.Create(base + ".raw")
	if err != nil {
		return errors.Wrap(err, "create raw payload")
	}
	defer raw.Close()
	if err := binary.Write(raw, binary.LittleEndian, data); err != nil {
		return errors.Wrap(err, "write raw payload")
	}

	meta, err := yaml.Marshal(h)
	if err != nil {
		return errors.Wrap(err, "marshal header")
	}
	if err := os.WriteFile(base+".yaml", meta, 0644); err != nil {
		return errors.Wrap(err, "write header")
	}
	return nil
}

func loadRaw(path string) (header, []float64, error) {
	base := strings.TrimSuffix(path, ".yaml")

	var h header
	metaBytes, err := os.ReadFile(base + ".yaml")
	if err != nil {
		return h, nil, errors.Wrap(err, "read header")
	}
	if err := yaml.Unmarshal(metaBytes, &h); err != nil {
		return h, nil, errors.Wrap(err, "parse header")
	}

	rawPath := filepath.Join(filepath.Dir(base), h.Data)
	info, err := os.Stat(rawPath)
	if err != nil {
		return h, nil, errors.Wrap(err, "stat raw payload")
	}
	if info.Size()%8 != 0 {
		return h, nil, errors.Newf("%s: payload size %d is not a multiple of 8", rawPath, info.Size())
	}

	raw, err := os.Open(rawPath)
	if err != nil {
		return h, nil, errors.Wrap(err, "open raw payload")
	}
	defer raw.Close()

	data := make([]float64, info.Size()/8)
	if err := binary.Read(raw, binary.LittleEndian, data); err != nil {
		return h, nil, errors.Wrap(err, "read raw payload")
	}
	return h, data, nil
}
