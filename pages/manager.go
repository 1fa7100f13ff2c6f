package pages

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"srdash/artifacts"
	"srdash/simulation"
)

// Config wires a Manager.
type Config struct {
	// Pipelines are the simulation presets; one page per pipeline.
	Pipelines []*simulation.Pipeline
	Store     *artifacts.Store
	Enhancer  Enhancer
	History   HistoryRecorder
	Clock     simulation.Clock
	// Seed makes the synthetic metrics reproducible. Zero is random.
	Seed           uint64
	MaxUploadBytes int64
	Logger         *zap.Logger
	// OnChange receives every page state change. It may be called from
	// timer and request goroutines.
	OnChange func(State)
}

// Manager owns every page workspace. Log ids are unique across pages.
type Manager struct {
	mu    sync.RWMutex
	pages map[Name]*Workspace
	order []Name
	ids   *simulation.Sequence
}

// NewManager builds one workspace per pipeline plus the upload page. The
// model-pipeline page runs /super-resolve, the upload page /enhance.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		cfg.Store = artifacts.NewStore(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = simulation.RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		pages: make(map[Name]*Workspace),
		ids:   &simulation.Sequence{},
	}

	for i, p := range cfg.Pipelines {
		name := Name(p.Name)
		if _, dup := m.pages[name]; dup || name == Upload {
			return nil, fmt.Errorf("pages: duplicate page %q", name)
		}
		w := m.newWorkspace(cfg, name, p.Title)
		w.preview = p
		w.seed = seedFor(cfg.Seed, i)

		var sampler simulation.Sampler
		if cfg.Seed != 0 {
			sampler = simulation.NewSampler(w.seed)
		}
		w.sched = simulation.NewScheduler(p, simulation.Options{
			Clock:    cfg.Clock,
			Sampler:  sampler,
			IDs:      m.ids,
			Logger:   cfg.Logger,
			OnChange: w.emitSnapshot,
		})
		w.logs = w.sched.Logs()
		if name == ModelPipeline {
			w.endpoint = EndpointSuperResolve
		}
		m.add(w)
	}

	up := m.newWorkspace(cfg, Upload, "Image Upload")
	up.endpoint = EndpointEnhance
	up.logs = simulation.NewLogStream(0, m.ids, cfg.Clock)
	m.add(up)

	return m, nil
}

func seedFor(seed uint64, i int) uint64 {
	if seed == 0 {
		return 0
	}
	return seed + uint64(i)
}

func (m *Manager) newWorkspace(cfg Config, name Name, title string) *Workspace {
	return &Workspace{
		name:      name,
		title:     title,
		store:     cfg.Store,
		enhancer:  cfg.Enhancer,
		history:   cfg.History,
		clock:     cfg.Clock,
		logger:    cfg.Logger.Named("page").With(zap.String("page", string(name))),
		maxUpload: cfg.MaxUploadBytes,
		onChange:  cfg.OnChange,
	}
}

func (m *Manager) add(w *Workspace) {
	m.pages[w.name] = w
	m.order = append(m.order, w.name)
}

// Get returns the workspace called name.
func (m *Manager) Get(name Name) (*Workspace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.pages[name]
	return w, ok
}

// Names returns the page names in creation order.
func (m *Manager) Names() []Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Name(nil), m.order...)
}

// States returns the state of every page, sorted by name.
func (m *Manager) States() []State {
	m.mu.RLock()
	pages := make([]*Workspace, 0, len(m.pages))
	for _, w := range m.pages {
		pages = append(pages, w)
	}
	m.mu.RUnlock()

	states := make([]State, 0, len(pages))
	for _, w := range pages {
		states = append(states, w.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// Close tears down every page.
func (m *Manager) Close() {
	m.mu.RLock()
	pages := make([]*Workspace, 0, len(m.pages))
	for _, w := range m.pages {
		pages = append(pages, w)
	}
	m.mu.RUnlock()

	for _, w := range pages {
		w.Close()
	}
}
