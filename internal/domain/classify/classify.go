// Package classify assigns telemetry rows to task families by level name.
package classify

import (
	"strings"

	"github.com/okian/trialstats/internal/domain/model"
)

// Family names a category of trials sharing one aggregation metric. The
// string value is the key used in aggregate documents and configuration.
type Family string

// Task families.
const (
	SpatialAccuracy Family = "spatial_accuracy"
	VoiceAccuracy   Family = "voice_accuracy"
	PointAccuracy   Family = "point_accuracy"
	GrabAccuracy    Family = "grab_accuracy"
	GridReaction    Family = "grid_reaction"
	ModalityLatency Family = "modality_latency"
)

// Families lists every family in report order.
var Families = []Family{
	SpatialAccuracy,
	VoiceAccuracy,
	PointAccuracy,
	GrabAccuracy,
	GridReaction,
	ModalityLatency,
}

// Single-modality levels. The remaining modality levels are combinations.
var SingleModalities = []string{"eye", "voice", "point", "grab"}

// Combined-modality levels.
var CombinedModalities = []string{"eye+voice", "hand+voice", "hand+eye", "hand+eye+voice"}

var vocabulary = func() map[string]Family {
	v := map[string]Family{
		"practicegaze":  SpatialAccuracy,
		"practiceeye":   SpatialAccuracy,
		"practicevoice": VoiceAccuracy,
		"practicepoint": PointAccuracy,
		"practicegrab":  GrabAccuracy,
		"coupongame":    GridReaction,
	}
	for _, l := range SingleModalities {
		v[l] = ModalityLatency
	}
	for _, l := range CombinedModalities {
		v[l] = ModalityLatency
	}
	return v
}()

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// Level returns the normalized form of a level name used for matching.
func Level(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Classify returns the family for a level name. Matching is
// case-insensitive and ignores surrounding whitespace.
func Classify(levelName string) (Family, bool) {
	f, ok := vocabulary[Level(levelName)]
	return f, ok
}

// IsSingleModality reports whether a normalized level is a single-channel level.
func IsSingleModality(level string) bool {
	for _, l := range SingleModalities {
		if l == level {
			return true
		}
	}
	return false
}

// Partition splits rows into families. Rows matching no family are left out
// and counted in the second return value.
func Partition(rows []model.Row) (map[Family][]model.Row, int) {
	out := make(map[Family][]model.Row)
	missed := 0
	for _, r := range rows {
		f, ok := Classify(r.Get(model.LevelName))
		if !ok {
			missed++
			continue
		}
		out[f] = append(out[f], r)
	}
	return out, missed
}
