package printer

import "time"

// Config is the printer section of the configuration surface (spec.md §6):
// defaults applied whenever a job does not override them, plus the hard Z
// ceiling invariant 2 enforces.
type Config struct {
	MaxZMicrons               uint32
	DefaultLiftMicrons        uint32
	DefaultUpSpeedMMPerSec    float64
	DefaultDownSpeedMMPerSec  float64
	DefaultWaitBeforeExposure time.Duration
	DefaultWaitAfterExposure  time.Duration
	PauseLiftMicrons          uint32
}

// motionParams is the fully-resolved set of per-job motion parameters: job
// overrides win where present, configured defaults fill the rest (Design
// Notes: "Capability set for file formats" — formats missing optional
// capabilities return absence, the orchestrator fills with configured
// defaults).
type motionParams struct {
	liftMicrons        uint32
	upSpeedMMPerSec    float64
	downSpeedMMPerSec  float64
	waitBeforeExposure time.Duration
	waitAfterExposure  time.Duration
}
