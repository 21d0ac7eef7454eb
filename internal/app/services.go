package app

import (
	"time"

	"go.uber.org/zap"
)

// Stores bundles the collaborators the engine is built on.
type Stores struct {
	Catalog      Catalog
	Questions    QuestionBank
	Attempts     AttemptStore
	Lessons      LessonProgress
	Completions  CompletionStore
	Certificates CertificateStore
}

// Settings holds the tunable policy values.
type Settings struct {
	DailyPassThreshold float64
	GrandtestCooldown  time.Duration
	EssayMinLength     int
}

// Services is the assembled assessment and progression engine.
type Services struct {
	Engine       *Engine
	Progression  *ProgressionGate
	Completion   *CompletionTracker
	Eligibility  *EligibilityGuard
	Certificates *CertificateIssuer
}

// Option customizes NewServices.
type Option func(*options)

type options struct {
	now     func() time.Time
	log     *zap.Logger
	metrics Recorder
	graders Graders
	shuffle func(n int, swap func(i, j int))
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithGraders replaces the grading strategies; missing types fall back to exact matching.
func WithGraders(g Graders) Option {
	return func(o *options) { o.graders = g }
}

// WithShuffle replaces the random sampler used for question pools.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(o *options) { o.shuffle = shuffle }
}

// NewServices wires every component over the given stores.
func NewServices(st Stores, set Settings, opts ...Option) *Services {
	o := options{
		now:     time.Now,
		log:     zap.NewNop(),
		metrics: nopRecorder{},
		shuffle: defaultShuffle,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.graders == nil {
		o.graders = DefaultGraders(set.EssayMinLength)
	}

	gate := NewProgressionGate(st.Catalog, st.Attempts, set.DailyPassThreshold)

	tracker := NewCompletionTracker(st.Catalog, st.Attempts, st.Lessons, st.Completions, st.Certificates)
	tracker.now = o.now
	tracker.log = o.log.Named("completion")

	guard := NewEligibilityGuard(st.Catalog, st.Attempts, st.Completions, set.GrandtestCooldown)
	guard.now = o.now

	issuer := NewCertificateIssuer(st.Certificates)
	issuer.now = o.now
	issuer.log = o.log.Named("certificates")
	issuer.metrics = o.metrics

	engine := &Engine{
		catalog:   st.Catalog,
		questions: st.Questions,
		attempts:  st.Attempts,
		gate:      gate,
		guard:     guard,
		tracker:   tracker,
		issuer:    issuer,
		graders:   o.graders,
		now:       o.now,
		shuffle:   o.shuffle,
		log:       o.log.Named("engine"),
		metrics:   o.metrics,
	}

	return &Services{
		Engine:       engine,
		Progression:  gate,
		Completion:   tracker,
		Eligibility:  guard,
		Certificates: issuer,
	}
}
