package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	Seed               int64 `yaml:"seed"`
	ActorCapacity      int64 `yaml:"actor_capacity"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`

	Pose       PoseTolerances `yaml:"pose"`
	Gestures   Gestures       `yaml:"gestures"`
	RateLimits RateLimits     `yaml:"rate_limits"`
}

type PoseTolerances struct {
	DistanceTol float64 `yaml:"distance_tol"`
	VerticalTol float64 `yaml:"vertical_tol"`
	AngleTolDeg float64 `yaml:"angle_tol_deg"`
}

type Gestures struct {
	DefaultTimeoutS  float64 `yaml:"default_timeout_s"`
	MaxStepsPerSched int     `yaml:"max_steps_per_sched"`
}

type RateLimits struct {
	ScheduleWindowTicks int `yaml:"schedule_window_ticks"`
	ScheduleMax         int `yaml:"schedule_max"`
	InstantWindowTicks  int `yaml:"instant_window_ticks"`
	InstantMax          int `yaml:"instant_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Default returns the tuning used when no tuning.yaml is supplied.
func Default() Tuning {
	return Tuning{
		ProtocolVersion:    "0.3",
		TickRateHz:         10,
		Seed:               1337,
		ActorCapacity:      100,
		SnapshotEveryTicks: 600,
		Pose: PoseTolerances{
			DistanceTol: 0.5,
			VerticalTol: 1.0,
			AngleTolDeg: 15,
		},
		Gestures: Gestures{
			DefaultTimeoutS:  30,
			MaxStepsPerSched: 16,
		},
		RateLimits: RateLimits{
			ScheduleWindowTicks: 100,
			ScheduleMax:         20,
			InstantWindowTicks:  10,
			InstantMax:          64,
		},
	}
}
