// Package config loads registration.Params from YAML, the "configuration
// collaborator" spec.md places outside the core's scope.
package config

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/viamrobotics/pcregister/registration"
)

// RANSACFile mirrors registration.RANSACParams with YAML tags; the zero
// value of every field defers to registration.DefaultParams().
type RANSACFile struct {
	MaxIterations   int     `yaml:"max_iterations"`
	InlierThreshold float64 `yaml:"inlier_threshold"`
	SampleSize      int     `yaml:"sample_size"`
	Seed            int64   `yaml:"seed"`
}

// File is the on-disk shape of a Params document.
type File struct {
	MaxIterations              int        `yaml:"max_iterations"`
	Tolerance                  float64    `yaml:"tolerance"`
	TargetRMSE                 float64    `yaml:"target_rmse"`
	RequireAbsoluteRMSECeiling float64    `yaml:"require_absolute_rmse_ceiling"`
	KDTreeThreshold            int        `yaml:"kdtree_threshold"`
	// The downsample triggers are pointers so an explicit 0 in the
	// document (downsampling disabled) is distinguishable from an absent
	// field (take the default).
	DownsampleTrigger      *int `yaml:"downsample_trigger"`
	DownsampleLargeTrigger *int `yaml:"downsample_large_trigger"`

	DownsampleTarget      int        `yaml:"downsample_target"`
	DownsampleLargeTarget int        `yaml:"downsample_large_target"`
	UseRANSAC             bool       `yaml:"use_ransac"`
	RANSAC                RANSACFile `yaml:"ransac"`
	SpatialGrid           struct {
		CellSize float64 `yaml:"cell_size"`
	} `yaml:"spatial_grid"`
}

// Load reads and validates a Params document from path.
func Load(path string) (registration.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return registration.Params{}, errors.Wrapf(err, "config: reading %s", path)
	}
	return Parse(data)
}

// Parse decodes a Params document from YAML bytes already in memory.
func Parse(data []byte) (registration.Params, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return registration.Params{}, errors.Wrap(err, "config: invalid YAML")
	}
	if err := validate(f); err != nil {
		return registration.Params{}, err
	}

	downTrigger, downLargeTrigger := -1, -1
	if f.DownsampleTrigger != nil {
		downTrigger = *f.DownsampleTrigger
	}
	if f.DownsampleLargeTrigger != nil {
		downLargeTrigger = *f.DownsampleLargeTrigger
	}

	return registration.Params{
		MaxIterations:              f.MaxIterations,
		Tolerance:                  f.Tolerance,
		TargetRMSE:                 f.TargetRMSE,
		RequireAbsoluteRMSECeiling: f.RequireAbsoluteRMSECeiling,
		KDTreeThreshold:            f.KDTreeThreshold,
		DownsampleTrigger:          downTrigger,
		DownsampleLargeTrigger:     downLargeTrigger,
		DownsampleTarget:           f.DownsampleTarget,
		DownsampleLargeTarget:      f.DownsampleLargeTarget,
		UseRANSAC:                  f.UseRANSAC,
		RANSAC: registration.RANSACParams{
			MaxIterations:   f.RANSAC.MaxIterations,
			InlierThreshold: f.RANSAC.InlierThreshold,
			SampleSize:      f.RANSAC.SampleSize,
			Seed:            f.RANSAC.Seed,
		},
		SpatialGridCellSize: f.SpatialGrid.CellSize,
	}, nil
}

// validate accumulates independent, non-fatal field problems rather than
// stopping at the first one, so a caller sees every issue in a single pass.
func validate(f File) error {
	var errs error
	if f.MaxIterations < 0 {
		errs = multierr.Append(errs, errors.New("config: max_iterations must be >= 0"))
	}
	if f.Tolerance < 0 {
		errs = multierr.Append(errs, errors.New("config: tolerance must be >= 0"))
	}
	if f.RANSAC.SampleSize != 0 && f.RANSAC.SampleSize < 3 {
		errs = multierr.Append(errs, errors.New("config: ransac.sample_size must be >= 3"))
	}
	return errs
}
