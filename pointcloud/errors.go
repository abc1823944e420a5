package pointcloud

import "github.com/pkg/errors"

// Sentinel error kinds shared by the data-model and transform-algebra
// layers. Higher-level components (registration) wrap these with
// call-site context via github.com/pkg/errors rather than inventing new
// kinds, so errors.Is against these sentinels keeps working.
var (
	// ErrNonFiniteInput marks a NaN or infinite input coordinate.
	ErrNonFiniteInput = errors.New("non-finite input coordinate")
	// ErrNonRigidInput marks a transform whose rotation block is not a
	// proper rotation (orthonormal, determinant +1).
	ErrNonRigidInput = errors.New("transform is not a proper rigid transform")
)
