package simulation

import (
	"math"
	"math/rand/v2"
)

// The recurrences below are pure: the caller supplies u, a uniform sample
// in [0, 1). Given the same inputs they always return the same value.

// NextGeneratorLoss returns max(floor, cur - decay - u*jitter).
func NextGeneratorLoss(cur float64, p GeneratorParams, u float64) float64 {
	return math.Max(p.Floor, cur-p.Decay-u*p.Jitter)
}

// NextDiscriminatorLoss returns target + (cur-target)*retention + (u-0.5)*jitter.
func NextDiscriminatorLoss(cur float64, p DiscriminatorParams, u float64) float64 {
	return p.Target + (cur-p.Target)*p.Retention + (u-0.5)*p.Jitter
}

// NextPSNR returns min(ceiling, cur + growth + u*jitter).
func NextPSNR(cur float64, p PSNRParams, u float64) float64 {
	return math.Min(p.Ceiling, cur+p.Growth+u*p.Jitter)
}

// RealnessScore maps u onto [min, max).
func RealnessScore(r ScoreRange, u float64) float64 {
	return r.Min + u*(r.Max-r.Min)
}

// GeneratorParams drives the generator loss decay.
type GeneratorParams struct {
	Floor  float64 `yaml:"floor" json:"floor"`
	Decay  float64 `yaml:"decay" json:"decay"`
	Jitter float64 `yaml:"jitter" json:"jitter"`
}

// DiscriminatorParams drives the mean-reverting discriminator loss.
type DiscriminatorParams struct {
	Target    float64 `yaml:"target" json:"target"`
	Retention float64 `yaml:"retention" json:"retention"`
	Jitter    float64 `yaml:"jitter" json:"jitter"`
}

// PSNRParams drives the PSNR growth.
type PSNRParams struct {
	Ceiling float64 `yaml:"ceiling" json:"ceiling"`
	Growth  float64 `yaml:"growth" json:"growth"`
	Jitter  float64 `yaml:"jitter" json:"jitter"`
}

// ScoreRange bounds the cosmetic realness score.
type ScoreRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// DriftParams nudges the displayed losses between epochs.
type DriftParams struct {
	Generator     GeneratorParams     `yaml:"generator" json:"generator"`
	Discriminator DiscriminatorParams `yaml:"discriminator" json:"discriminator"`
}

// Values is a reading of the three signals.
type Values struct {
	Generator     float64 `yaml:"generator" json:"generatorLoss"`
	Discriminator float64 `yaml:"discriminator" json:"discriminatorLoss"`
	PSNR          float64 `yaml:"psnr" json:"psnr"`
}

// MetricParams configures a Generator.
type MetricParams struct {
	Initial       Values              `yaml:"initial" json:"initial"`
	Generator     GeneratorParams     `yaml:"generator" json:"generator"`
	Discriminator DiscriminatorParams `yaml:"discriminator" json:"discriminator"`
	PSNR          PSNRParams          `yaml:"psnr" json:"psnr"`
	Score         ScoreRange          `yaml:"score" json:"score"`
	Drift         DriftParams         `yaml:"drift" json:"drift"`
}

// Sampler yields uniform samples in [0, 1). *rand.Rand satisfies it.
type Sampler interface {
	Float64() float64
}

// NewSampler returns a seeded sampler. Two samplers built from the same
// seed produce the same sequence. Seed 0 picks a random seed.
func NewSampler(seed uint64) Sampler {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generator applies the recurrences of MetricParams using one Sampler.
// It is not safe for concurrent use; each scheduler owns its own.
type Generator struct {
	params MetricParams
	src    Sampler
}

// NewGenerator creates a Generator. A nil src uses a randomly seeded sampler.
func NewGenerator(params MetricParams, src Sampler) *Generator {
	if src == nil {
		src = NewSampler(0)
	}
	return &Generator{params: params, src: src}
}

// Initial returns the configured starting values.
func (g *Generator) Initial() Values { return g.params.Initial }

// Next returns the values for the following epoch. PSNR only moves when a
// ceiling is configured.
func (g *Generator) Next(cur Values) Values {
	next := Values{
		Generator:     NextGeneratorLoss(cur.Generator, g.params.Generator, g.src.Float64()),
		Discriminator: NextDiscriminatorLoss(cur.Discriminator, g.params.Discriminator, g.src.Float64()),
		PSNR:          cur.PSNR,
	}
	if g.params.PSNR.Ceiling > 0 {
		next.PSNR = NextPSNR(cur.PSNR, g.params.PSNR, g.src.Float64())
	}
	return next
}

// Drift applies one drift tick to the losses. PSNR is left alone.
func (g *Generator) Drift(cur Values) Values {
	d := g.params.Drift
	return Values{
		Generator:     NextGeneratorLoss(cur.Generator, d.Generator, g.src.Float64()),
		Discriminator: NextDiscriminatorLoss(cur.Discriminator, d.Discriminator, g.src.Float64()),
		PSNR:          cur.PSNR,
	}
}

// Score draws a realness score.
func (g *Generator) Score() float64 {
	return RealnessScore(g.params.Score, g.src.Float64())
}

// GenerateHistory runs the recurrences for epochs steps from params.Initial
// and returns the resulting series, epochs numbered from 1.
func GenerateHistory(params MetricParams, src Sampler, epochs int) SeriesView {
	g := NewGenerator(params, src)
	view := SeriesView{
		Generator:     make([]Point, 0, epochs),
		Discriminator: make([]Point, 0, epochs),
		PSNR:          make([]Point, 0, epochs),
	}
	cur := params.Initial
	for e := 1; e <= epochs; e++ {
		cur = g.Next(cur)
		view.Generator = append(view.Generator, Point{Epoch: e, Value: cur.Generator})
		view.Discriminator = append(view.Discriminator, Point{Epoch: e, Value: cur.Discriminator})
		if params.PSNR.Ceiling > 0 {
			view.PSNR = append(view.PSNR, Point{Epoch: e, Value: cur.PSNR})
		}
	}
	return view
}
