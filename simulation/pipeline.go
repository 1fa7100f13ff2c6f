package simulation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects what happens when the last stage of a pass finishes.
type Mode string

const (
	// ModeOneShot completes the run after a single pass.
	ModeOneShot Mode = "one-shot"
	// ModeEpochLoop records an epoch and starts the next pass.
	ModeEpochLoop Mode = "epoch-loop"
)

// Stage is one named phase of a pipeline pass.
type Stage struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	// Message is logged when the stage becomes active. Empty logs nothing.
	Message string `yaml:"message" json:"message,omitempty"`
	Level   Level  `yaml:"level" json:"level,omitempty"`
	// Status is the short status text shown while the stage is active.
	Status string `yaml:"status" json:"status,omitempty"`
	// Delay is the dwell time before the next stage, on top of the
	// sub-stage sequence.
	Delay            time.Duration `yaml:"delay" json:"delay"`
	SubStages        []string      `yaml:"sub_stages" json:"subStages,omitempty"`
	SubStageInterval time.Duration `yaml:"sub_stage_interval" json:"subStageInterval,omitempty"`
	// DrawsScore redraws the realness score on entry.
	DrawsScore bool `yaml:"draws_score" json:"drawsScore,omitempty"`
}

// Duration is how long the stage stays active.
func (s Stage) Duration() time.Duration {
	return s.Delay + time.Duration(len(s.SubStages))*s.SubStageInterval
}

// EpochHook logs extra messages after selected epochs. At matches one epoch,
// Every matches each multiple. Messages may use {epoch} and {score}.
type EpochHook struct {
	At       int      `yaml:"at" json:"at,omitempty"`
	Every    int      `yaml:"every" json:"every,omitempty"`
	Messages []string `yaml:"messages" json:"messages"`
}

// Matches reports whether the hook fires for epoch.
func (h EpochHook) Matches(epoch int) bool {
	if h.At > 0 && epoch == h.At {
		return true
	}
	return h.Every > 0 && epoch%h.Every == 0
}

// Preview configures the synthetic history shown before a run has data.
type Preview struct {
	Epochs  int          `yaml:"epochs" json:"epochs"`
	Metrics MetricParams `yaml:"metrics" json:"metrics"`
}

// Pipeline is the full description of one simulated flow. A single
// Scheduler implementation runs every Pipeline.
type Pipeline struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title" json:"title"`
	Mode  Mode   `yaml:"mode" json:"mode"`

	Stages []Stage `yaml:"stages" json:"stages"`

	InitialDelay time.Duration `yaml:"initial_delay" json:"initialDelay"`
	EpochDelay   time.Duration `yaml:"epoch_delay" json:"epochDelay,omitempty"`
	// MaxEpochs completes an epoch-loop run once reached. Zero loops forever.
	MaxEpochs     int           `yaml:"max_epochs" json:"maxEpochs,omitempty"`
	DriftInterval time.Duration `yaml:"drift_interval" json:"driftInterval,omitempty"`
	Window        int           `yaml:"window" json:"window"`
	LogLimit      int           `yaml:"log_limit" json:"logLimit,omitempty"`
	TrackPSNR     bool          `yaml:"track_psnr" json:"trackPsnr"`
	// ScaleFactor is reported in the final metrics of a one-shot run.
	ScaleFactor int `yaml:"scale_factor" json:"scaleFactor,omitempty"`

	StartMessage    string `yaml:"start_message" json:"startMessage,omitempty"`
	PauseMessage    string `yaml:"pause_message" json:"pauseMessage,omitempty"`
	ResumeMessage   string `yaml:"resume_message" json:"resumeMessage,omitempty"`
	EpochMessage    string `yaml:"epoch_message" json:"epochMessage,omitempty"`
	CompleteMessage string `yaml:"complete_message" json:"completeMessage,omitempty"`

	Hooks   []EpochHook  `yaml:"hooks" json:"hooks,omitempty"`
	Metrics MetricParams `yaml:"metrics" json:"metrics"`
	Preview *Preview     `yaml:"preview" json:"preview,omitempty"`
}

// Resumable reports whether Resume is supported.
func (p *Pipeline) Resumable() bool {
	return p.Mode == ModeEpochLoop
}

// StageIndex returns the position of the stage with id, or -1.
func (p *Pipeline) StageIndex(id string) int {
	for i, s := range p.Stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// PassDuration is the time from the first stage entry to the end of the pass.
func (p *Pipeline) PassDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration()
	}
	return total
}

// Validate checks p and fills defaults for optional fields.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return errors.New("pipeline name is required")
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	switch p.Mode {
	case ModeOneShot, ModeEpochLoop:
	case "":
		p.Mode = ModeOneShot
	default:
		return fmt.Errorf("pipeline %s: unknown mode %q", p.Name, p.Mode)
	}
	if p.InitialDelay < 0 || p.EpochDelay < 0 || p.DriftInterval < 0 {
		return fmt.Errorf("pipeline %s: delays must not be negative", p.Name)
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Mode == ModeOneShot && len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %s: one-shot pipelines need at least one stage", p.Name)
	}
	if p.Mode == ModeEpochLoop && p.EpochDelay+p.PassDuration() <= 0 {
		return fmt.Errorf("pipeline %s: an epoch must take some time", p.Name)
	}
	if p.Metrics.Score.Max < p.Metrics.Score.Min {
		return fmt.Errorf("pipeline %s: score max below min", p.Name)
	}

	seen := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID == "" {
			return fmt.Errorf("pipeline %s: stage %d has no id", p.Name, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("pipeline %s: duplicate stage %q", p.Name, s.ID)
		}
		seen[s.ID] = true
		if s.Label == "" {
			s.Label = s.ID
		}
		if s.Level == "" {
			s.Level = LevelInfo
		}
		if !s.Level.Valid() {
			return fmt.Errorf("pipeline %s: stage %s: unknown level %q", p.Name, s.ID, s.Level)
		}
		if s.Delay < 0 {
			return fmt.Errorf("pipeline %s: stage %s: negative delay", p.Name, s.ID)
		}
		if len(s.SubStages) > 0 && s.SubStageInterval <= 0 {
			return fmt.Errorf("pipeline %s: stage %s: sub-stages need a positive interval", p.Name, s.ID)
		}
	}
	if p.Preview != nil && p.Preview.Epochs <= 0 {
		p.Preview.Epochs = p.MaxEpochs
	}
	return nil
}

// expand substitutes {epoch} and {score} in a hook message.
func expand(msg string, epoch int, score float64) string {
	r := strings.NewReplacer(
		"{epoch}", strconv.Itoa(epoch),
		"{score}", strconv.FormatFloat(score, 'f', 2, 64),
	)
	return r.Replace(msg)
}

type pipelineFile struct {
	Pipelines []*Pipeline `yaml:"pipelines"`
}

// ParsePipelines decodes and validates a YAML pipeline document.
func ParsePipelines(data []byte) ([]*Pipeline, error) {
	var doc pipelineFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode pipelines: %w", err)
	}
	if len(doc.Pipelines) == 0 {
		return nil, errors.New("no pipelines defined")
	}

	names := make(map[string]bool, len(doc.Pipelines))
	for _, p := range doc.Pipelines {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate pipeline %q", p.Name)
		}
		names[p.Name] = true
	}
	return doc.Pipelines, nil
}

//go:embed presets.yaml
var presetsYAML []byte

// DefaultPipelines returns freshly decoded copies of the built-in presets:
// model-pipeline, gan-architecture and training.
func DefaultPipelines() []*Pipeline {
	pipelines, err := ParsePipelines(presetsYAML)
	if err != nil {
		panic("built-in presets are invalid: " + err.Error())
	}
	return pipelines
}

// LoadPipelines reads pipelines from path, or returns the built-in presets
// when path is empty.
func LoadPipelines(path string) ([]*Pipeline, error) {
	if path == "" {
		return DefaultPipelines(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines file: %w", err)
	}
	return ParsePipelines(data)
}

// FindPipeline returns the pipeline named name, or nil.
func FindPipeline(pipelines []*Pipeline, name string) *Pipeline {
	for _, p := range pipelines {
		if p.Name == name {
			return p
		}
	}
	return nil
}
