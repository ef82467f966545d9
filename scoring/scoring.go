// Package scoring turns kills and placements into points and orders
// cumulative standings.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/Dosada05/tournament-engine/models"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid scoring config")

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DefaultConfig is used when neither the tournament nor the config file
// supplies a policy.
func DefaultConfig() models.ScoringConfig {
	return models.ScoringConfig{
		KillMultiplier: 1,
		PlacementPoints: map[int]float64{
			1: 12, 2: 9, 3: 8, 4: 7, 5: 6, 6: 5, 7: 4, 8: 3,
			9: 2, 10: 1, 11: 1, 12: 1,
		},
	}
}

func Validate(cfg models.ScoringConfig) error {
	if cfg.KillMultiplier < 0 || math.IsNaN(cfg.KillMultiplier) || math.IsInf(cfg.KillMultiplier, 0) {
		return fmt.Errorf("%w: kill multiplier must be a non-negative number, got %v", ErrInvalidConfig, cfg.KillMultiplier)
	}
	for placement, pts := range cfg.PlacementPoints {
		if placement < 1 {
			return fmt.Errorf("%w: placement %d must be >= 1", ErrInvalidConfig, placement)
		}
		if pts < 0 || math.IsNaN(pts) || math.IsInf(pts, 0) {
			return fmt.Errorf("%w: points for placement %d must be non-negative, got %v", ErrInvalidConfig, placement, pts)
		}
	}
	return nil
}

// LoadConfig reads a YAML scoring policy. An empty path yields DefaultConfig.
func LoadConfig(path string) (models.ScoringConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ScoringConfig{}, fmt.Errorf("reading scoring config: %w", err)
	}
	var cfg models.ScoringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return models.ScoringConfig{}, fmt.Errorf("parsing scoring config: %w", err)
	}
	if cfg.PlacementPoints == nil {
		cfg.PlacementPoints = DefaultConfig().PlacementPoints
	}
	if err := Validate(cfg); err != nil {
		return models.ScoringConfig{}, err
	}
	return cfg, nil
}

// PlacementFor maps the number of participants still active in the room and
// match (including the one being completed) to its placement: with N active
// the first one out finishes N-th.
func PlacementFor(activeCount int) int {
	if activeCount < 1 {
		return 1
	}
	return activeCount
}

// PlacementPoints returns the table value for placement, 0 when unresolved
// or outside the table.
func PlacementPoints(cfg models.ScoringConfig, placement *int) float64 {
	if placement == nil {
		return 0
	}
	return cfg.PlacementPoints[*placement]
}
