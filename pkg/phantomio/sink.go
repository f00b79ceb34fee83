package phantomio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"phantom4d/pkg/synthesis"
)

// Metadata is the per-run record persisted alongside the series so a
// downstream consumer can reproduce or audit the run.
type Metadata struct {
	RunID         string    `yaml:"runId"`
	CreatedAt     time.Time `yaml:"createdAt"`
	Phases        int       `yaml:"phases"`
	FillMode      string    `yaml:"fillMode"`
	Background    float64   `yaml:"background"`
	OrganPriority []int     `yaml:"organPriority"`
	DVFSource     string    `yaml:"dvfSource"`
	Conflicts     int       `yaml:"labelConflicts"`
}

// NewMetadata assembles the metadata record for a completed run.
func NewMetadata(report *synthesis.RunReport, organPriority []int, dvfSource string) Metadata {
	return Metadata{
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Phases:        report.Phases,
		FillMode:      report.FillMode,
		Background:    report.Background,
		OrganPriority: organPriority,
		DVFSource:     dvfSource,
		Conflicts:     report.TotalConflicts,
	}
}

// DirSink streams phases into a directory as they are synthesized:
// imageNNN, segNNN_<organ>, and optionally dvfNNN volume pairs, plus
// metadata.yaml at the end of the run.
type DirSink struct {
	dir string

	// SaveFields controls whether the ground-truth displacement fields
	// are persisted with the series.
	SaveFields bool
}

// NewDirSink creates the output directory and returns a sink writing
// into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	return &DirSink{dir: dir}, nil
}

// WritePhase persists one phase. Phases arrive in index order.
func (s *DirSink) WritePhase(phase *synthesis.PhantomPhase) error {
	imagePath := filepath.Join(s.dir, fmt.Sprintf("image%03d", phase.Index))
	if err := WriteVolume(imagePath, phase.Image); err != nil {
		return errors.Wrapf(err, "phase %d image", phase.Index)
	}
	for _, organ := range phase.Segmentation {
		segPath := filepath.Join(s.dir, fmt.Sprintf("seg%03d_%d", phase.Index, organ.ID))
		if err := WriteVolume(segPath, organ.Mask); err != nil {
			return errors.Wrapf(err, "phase %d organ %d", phase.Index, organ.ID)
		}
	}
	if s.SaveFields {
		fieldPath := filepath.Join(s.dir, fmt.Sprintf("dvf%03d", phase.Index))
		if err := WriteField(fieldPath, phase.Field); err != nil {
			return errors.Wrapf(err, "phase %d field", phase.Index)
		}
	}
	return nil
}

// WriteMetadata persists the run record as metadata.yaml.
func (s *DirSink) WriteMetadata(meta Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}
	if err := os.WriteFile(filepath.Join(s.dir, "metadata.yaml"), data, 0644); err != nil {
		return errors.Wrap(err, "write metadata")
	}
	return nil
}

// MemorySink collects phases in memory. Intended for tests and for
// callers that post-process the series without touching disk.
type MemorySink struct {
	Phases   []*synthesis.PhantomPhase
	Metadata Metadata
}

// WritePhase appends the phase.
func (s *MemorySink) WritePhase(phase *synthesis.PhantomPhase) error {
	s.Phases = append(s.Phases, phase)
	return nil
}

// WriteMetadata stores the run record.
func (s *MemorySink) WriteMetadata(meta Metadata) error {
	s.Metadata = meta
	return nil
}
