package registration

import "github.com/pkg/errors"

// Fatal entry-validation error kinds (spec.md §7). These are returned
// directly from Register/ICPRefine/RANSACFilter and never recovered from
// mid-loop.
var (
	// ErrInsufficientPoints marks fewer than 3 points in a source or target
	// cloud.
	ErrInsufficientPoints = errors.New("insufficient points: need at least 3")
	// ErrSampleTooSmall marks a RANSAC cloud too small to form a minimal
	// sample of 3 points.
	ErrSampleTooSmall = errors.New("sample too small for a 3-point RANSAC model")
)

// TerminationReason explains why ICPRefiner stopped iterating.
type TerminationReason int

const (
	// ReasonConverged means the RMSE delta (or absolute RMSE) satisfied
	// the convergence predicate.
	ReasonConverged TerminationReason = iota
	// ReasonMaxIterations means the iteration budget was exhausted.
	ReasonMaxIterations
	// ReasonNumericalDivergence means a transformed coordinate became
	// non-finite; the last known good transform is returned.
	ReasonNumericalDivergence
	// ReasonInsufficientCorrespondences means fewer than 3 correspondences
	// survived in some iteration.
	ReasonInsufficientCorrespondences
	// ReasonUserCancelled means the caller's cancel token fired.
	ReasonUserCancelled
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonConverged:
		return "converged"
	case ReasonMaxIterations:
		return "max_iterations"
	case ReasonNumericalDivergence:
		return "numerical_divergence"
	case ReasonInsufficientCorrespondences:
		return "insufficient_correspondences"
	case ReasonUserCancelled:
		return "user_cancelled"
	default:
		return "unknown"
	}
}
