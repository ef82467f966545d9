package models

// ScoringConfig converts kills and placement into points. It is read once
// when a match starts and copied onto every MatchState of that match.
type ScoringConfig struct {
	KillMultiplier  float64         `json:"killMultiplier" yaml:"kill_multiplier" bson:"killMultiplier"`
	PlacementPoints map[int]float64 `json:"placementPoints" yaml:"placement_points" bson:"placementPoints"`
}

func (c ScoringConfig) Clone() ScoringConfig {
	out := ScoringConfig{KillMultiplier: c.KillMultiplier}
	if c.PlacementPoints != nil {
		out.PlacementPoints = make(map[int]float64, len(c.PlacementPoints))
		for k, v := range c.PlacementPoints {
			out.PlacementPoints[k] = v
		}
	}
	return out
}
