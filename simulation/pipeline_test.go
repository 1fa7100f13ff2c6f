package simulation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultPipelines(t *testing.T) {
	pipelines := DefaultPipelines()

	names := []string{"model-pipeline", "gan-architecture", "training"}
	if len(pipelines) != len(names) {
		t.Fatalf("got %d pipelines, want %d", len(pipelines), len(names))
	}
	for _, name := range names {
		if FindPipeline(pipelines, name) == nil {
			t.Errorf("preset %q missing", name)
		}
	}

	mp := FindPipeline(pipelines, "model-pipeline")
	if mp.Mode != ModeOneShot || mp.Resumable() {
		t.Errorf("model-pipeline mode = %s resumable = %v, want one-shot, false", mp.Mode, mp.Resumable())
	}
	if len(mp.Stages) != 8 {
		t.Errorf("model-pipeline has %d stages, want 8", len(mp.Stages))
	}
	gen := mp.Stages[mp.StageIndex("generator")]
	if gen.Duration() != 1800*time.Millisecond {
		t.Errorf("generator stage duration = %v, want 1.8s", gen.Duration())
	}
	if mp.InitialDelay != 300*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 300ms", mp.InitialDelay)
	}
	if mp.Stages[0].Level != LevelInfo {
		t.Errorf("default stage level = %q, want INFO", mp.Stages[0].Level)
	}

	gan := FindPipeline(pipelines, "gan-architecture")
	if gan.Window != 50 || gan.DriftInterval != 500*time.Millisecond {
		t.Errorf("gan window = %d drift = %v, want 50, 500ms", gan.Window, gan.DriftInterval)
	}
	if gan.Metrics.Initial.Generator != 0.8 {
		t.Errorf("gan initial generator loss = %v, want 0.8", gan.Metrics.Initial.Generator)
	}

	tr := FindPipeline(pipelines, "training")
	if tr.MaxEpochs != 80 || tr.Window != 100 || !tr.TrackPSNR {
		t.Errorf("training = max %d window %d psnr %v", tr.MaxEpochs, tr.Window, tr.TrackPSNR)
	}
	if tr.Preview == nil || tr.Preview.Epochs != 80 {
		t.Errorf("training preview = %+v, want 80 epochs", tr.Preview)
	}
}

func TestDefaultPipelines_ReturnsCopies(t *testing.T) {
	a := DefaultPipelines()
	a[0].Name = "mutated"
	if FindPipeline(DefaultPipelines(), "model-pipeline") == nil {
		t.Error("mutating one result affected later calls")
	}
}

func TestPipelineValidate(t *testing.T) {
	valid := func() *Pipeline {
		return &Pipeline{
			Name:   "p",
			Mode:   ModeOneShot,
			Stages: []Stage{{ID: "a", Delay: time.Second}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Pipeline)
		wantErr string
	}{
		{"valid", func(p *Pipeline) {}, ""},
		{"no name", func(p *Pipeline) { p.Name = "" }, "name is required"},
		{"bad mode", func(p *Pipeline) { p.Mode = "forever" }, "unknown mode"},
		{"no stages", func(p *Pipeline) { p.Stages = nil }, "at least one stage"},
		{"duplicate stage", func(p *Pipeline) { p.Stages = append(p.Stages, Stage{ID: "a"}) }, "duplicate stage"},
		{"sub-stages without interval", func(p *Pipeline) { p.Stages[0].SubStages = []string{"x"} }, "positive interval"},
		{"zero-time epoch loop", func(p *Pipeline) {
			p.Mode = ModeEpochLoop
			p.Stages = nil
		}, "must take some time"},
		{"bad level", func(p *Pipeline) { p.Stages[0].Level = "DEBUG" }, "unknown level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if p.Window != DefaultWindow || p.Stages[0].Label != "a" {
					t.Errorf("defaults not applied: window %d label %q", p.Window, p.Stages[0].Label)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEpochHook(t *testing.T) {
	every := EpochHook{Every: 10}
	at := EpochHook{At: 1}

	for epoch, want := range map[int]bool{1: false, 10: true, 15: false, 80: true} {
		if got := every.Matches(epoch); got != want {
			t.Errorf("Every 10 Matches(%d) = %v, want %v", epoch, got, want)
		}
	}
	if !at.Matches(1) || at.Matches(2) {
		t.Error("At 1 should match only epoch 1")
	}

	if got := expand("Running Generator (epoch {epoch}), score {score}", 20, 0.8123); got != "Running Generator (epoch 20), score 0.81" {
		t.Errorf("expand() = %q", got)
	}
}

func TestLoadPipelines(t *testing.T) {
	doc := `pipelines:
  - name: quick
    mode: one-shot
    stages:
      - {id: only, message: Only stage, delay: 10ms}
`
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	pipelines, err := LoadPipelines(path)
	if err != nil {
		t.Fatalf("LoadPipelines() error = %v", err)
	}
	if len(pipelines) != 1 || pipelines[0].Stages[0].Delay != 10*time.Millisecond {
		t.Errorf("LoadPipelines() = %+v", pipelines)
	}

	if _, err := LoadPipelines(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPipelines(missing) error = nil")
	}
	if _, err := ParsePipelines([]byte("pipelines: []")); err == nil {
		t.Error("ParsePipelines(empty) error = nil")
	}
}
