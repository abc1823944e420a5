package registration

// RANSACParams configures RANSACFilter (spec.md §4.7).
type RANSACParams struct {
	MaxIterations   int
	InlierThreshold float64
	SampleSize      int
	// Seed selects the PRNG seed. A zero value is a valid, deterministic
	// seed (callers who want non-determinism should pass a seed drawn from
	// their own entropy source — the core never seeds itself off wall
	//-clock time, since that would break reproducibility guarantees).
	Seed int64
}

// Event is emitted by the event-sink callback once per ICP iteration and
// once per RANSAC round, so a caller can show progress without the core
// owning a logger (spec.md §9).
type Event struct {
	Stage     string // "pca", "ransac", "icp"
	Iteration int
	RMSE      float64
	Note      string
}

// EventSink receives Events as registration progresses. May be nil.
type EventSink func(Event)

func emit(sink EventSink, e Event) {
	if sink != nil {
		sink(e)
	}
}

// Params is the parameter record the core consumes from a configuration
// collaborator (spec.md §3 "Params"). Zero-value fields are replaced by
// DefaultParams' defaults where noted.
type Params struct {
	MaxIterations int
	Tolerance     float64
	TargetRMSE    float64

	// RequireAbsoluteRMSECeiling implements the stricter convergence
	// profile spec.md §9's Open Question allows: convergence by RMSE
	// delta additionally requires RMSE below this ceiling. 0 disables the
	// ceiling (the spec's default behavior: converge on delta alone).
	RequireAbsoluteRMSECeiling float64

	KDTreeThreshold int

	// DownsampleTrigger and DownsampleLargeTrigger bound the adaptive
	// working-set schedule. A DownsampleTrigger of 0 disables downsampling
	// (every point is used on every iteration); a DownsampleLargeTrigger of
	// 0 disables only the large regime. A negative value selects the
	// default.
	DownsampleTrigger      int
	DownsampleLargeTrigger int
	DownsampleTarget       int // ~15,000 for the mid-size regime
	DownsampleLargeTarget  int // ~20,000 for the large regime

	UseRANSAC bool
	RANSAC    RANSACParams

	SpatialGridCellSize float64

	EventSink EventSink
	// CancelToken, if non-nil, is read (non-blocking) once per ICP
	// iteration; a closed channel terminates with ReasonUserCancelled.
	CancelToken <-chan struct{}
}

// DefaultParams returns the parameter defaults named in spec.md §3.
func DefaultParams() Params {
	return Params{
		MaxIterations:          50,
		Tolerance:              1e-7,
		TargetRMSE:             0,
		KDTreeThreshold:        60000,
		DownsampleTrigger:      30000,
		DownsampleLargeTrigger: 100000,
		DownsampleTarget:       15000,
		DownsampleLargeTarget:  20000,
		UseRANSAC:              false,
		RANSAC: RANSACParams{
			MaxIterations:   50,
			InlierThreshold: 0.05,
			SampleSize:      3,
		},
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.KDTreeThreshold <= 0 {
		p.KDTreeThreshold = d.KDTreeThreshold
	}
	// 0 is a meaningful trigger value (downsampling disabled), so only a
	// negative value is treated as unset here.
	if p.DownsampleTrigger < 0 {
		p.DownsampleTrigger = d.DownsampleTrigger
	}
	if p.DownsampleLargeTrigger < 0 {
		p.DownsampleLargeTrigger = d.DownsampleLargeTrigger
	}
	if p.DownsampleTarget <= 0 {
		p.DownsampleTarget = d.DownsampleTarget
	}
	if p.DownsampleLargeTarget <= 0 {
		p.DownsampleLargeTarget = d.DownsampleLargeTarget
	}
	if p.RANSAC.MaxIterations <= 0 {
		p.RANSAC.MaxIterations = d.RANSAC.MaxIterations
	}
	if p.RANSAC.SampleSize < 3 {
		p.RANSAC.SampleSize = d.RANSAC.SampleSize
	}
	if p.RANSAC.InlierThreshold <= 0 {
		p.RANSAC.InlierThreshold = d.RANSAC.InlierThreshold
	}
	return p
}
