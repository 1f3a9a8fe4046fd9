// Package aggregate computes grouped descriptive statistics over normalized
// telemetry rows.
//
// Every family reports per-entity means and an overall value that is the mean
// of the per-entity means, so an entity with many trials weighs the same as
// one with few. Families that end up with no usable rows are left out of the
// result entirely.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/internal/domain/coerce"
	"github.com/okian/trialstats/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// UnknownEntity groups rows whose entity column is blank.
const UnknownEntity = "unknown"

// Group is a per-entity breakdown with its equal-weight overall.
type Group struct {
	ByEntity map[string]float64
	Overall  float64
	Trials   int
}

// Cell is one grid position of the grid-reaction family.
type Cell struct {
	Group
	Label string
}

// Split holds the two-stage modality means: mean of per-level means over
// single-channel levels and over combined levels. A side with no levels is NaN.
type Split struct {
	Single   float64
	Combined float64
}

// Summary is the aggregate of one family. Cells is set for grid-reaction;
// Levels, Modality and ModalityOverall are set for modality-latency.
type Summary struct {
	Group
	Excluded        int
	Cells           map[int]Cell
	Levels          map[string]Group
	Modality        map[string]Split
	ModalityOverall *Split
}

// Result is the outcome of one aggregation run.
type Result struct {
	Families     map[classify.Family]Summary
	Rows         int
	Unclassified int
}

// Engine aggregates rows. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	entity        string
	defaultPolicy coerce.Policy
	policies      map[classify.Family]coerce.Policy
}

// New constructs an Engine grouping by user with the drop policy everywhere.
func New(opts ...Option) *Engine {
	e := &Engine{
		entity:        model.UserID,
		defaultPolicy: coerce.Drop,
		policies:      make(map[classify.Family]coerce.Policy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Entity returns the column rows are grouped by.
func (e *Engine) Entity() string { return e.entity }

// Policy returns the missing-data policy in force for a family.
func (e *Engine) Policy(f classify.Family) coerce.Policy {
	if p, ok := e.policies[f]; ok {
		return p
	}
	return e.defaultPolicy
}

// Aggregate classifies rows and summarizes every family that has usable data.
func (e *Engine) Aggregate(rows []model.Row) Result {
	parts, missed := classify.Partition(rows)
	res := Result{
		Families:     make(map[classify.Family]Summary, len(parts)),
		Rows:         len(rows),
		Unclassified: missed,
	}

	for _, f := range classify.Families {
		fr, ok := parts[f]
		if !ok {
			continue
		}
		var s Summary
		switch f {
		case classify.SpatialAccuracy:
			s = e.spatial(fr)
		case classify.VoiceAccuracy, classify.PointAccuracy, classify.GrabAccuracy:
			s = e.binary(f, fr)
		case classify.GridReaction:
			s = e.grid(fr)
		case classify.ModalityLatency:
			s = e.modality(fr)
		}
		if s.Trials == 0 {
			continue
		}
		res.Families[f] = s
	}
	return res
}

func (e *Engine) entityOf(r model.Row) string {
	id := strings.TrimSpace(r.Get(e.entity))
	if id == "" {
		return UnknownEntity
	}
	return id
}

// GazeError is the Euclidean distance between a gaze target and the observed
// gaze point.
func GazeError(target, observed [3]float64) float64 {
	dx := target[0] - observed[0]
	dy := target[1] - observed[1]
	dz := target[2] - observed[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (e *Engine) spatial(rows []model.Row) Summary {
	policy := e.Policy(classify.SpatialAccuracy)
	acc := newSamples()
	excluded := 0
	for _, r := range rows {
		v, ok := policy.Apply(
			coerce.Float(r.Get(model.GazeTargetX)),
			coerce.Float(r.Get(model.GazeTargetY)),
			coerce.Float(r.Get(model.GazeTargetZ)),
			coerce.Float(r.Get(model.GazeX)),
			coerce.Float(r.Get(model.GazeY)),
			coerce.Float(r.Get(model.GazeZ)),
		)
		if !ok {
			excluded++
			continue
		}
		acc.add(e.entityOf(r), GazeError([3]float64{v[0], v[1], v[2]}, [3]float64{v[3], v[4], v[5]}))
	}
	return Summary{Group: acc.group(), Excluded: excluded}
}

func (e *Engine) binary(f classify.Family, rows []model.Row) Summary {
	acc, excluded := e.column(f, rows, model.Result)
	return Summary{Group: acc.group(), Excluded: excluded}
}

func (e *Engine) column(f classify.Family, rows []model.Row, field string) (*samples, int) {
	policy := e.Policy(f)
	acc := newSamples()
	excluded := 0
	for _, r := range rows {
		v, ok := policy.Apply(coerce.Float(r.Get(field)))
		if !ok {
			excluded++
			continue
		}
		acc.add(e.entityOf(r), v[0])
	}
	return acc, excluded
}

func (e *Engine) grid(rows []model.Row) Summary {
	policy := e.Policy(classify.GridReaction)
	acc := newSamples()
	cells := make(map[int]*samples)
	excluded := 0
	for _, r := range rows {
		v, ok := policy.Apply(coerce.Float(r.Get(model.ReactionTime)))
		if !ok {
			excluded++
			continue
		}
		id := e.entityOf(r)
		acc.add(id, v[0])
		if idx, ok := coerce.Int(r.Get(model.GridIndex)); ok {
			c, found := cells[idx]
			if !found {
				c = newSamples()
				cells[idx] = c
			}
			c.add(id, v[0])
		}
	}

	s := Summary{Group: acc.group(), Excluded: excluded}
	if len(cells) > 0 {
		s.Cells = make(map[int]Cell, len(cells))
		for idx, c := range cells {
			s.Cells[idx] = Cell{Group: c.group(), Label: GridLabel(idx)}
		}
	}
	return s
}

func (e *Engine) modality(rows []model.Row) Summary {
	policy := e.Policy(classify.ModalityLatency)
	levels := make(map[string]*samples)
	excluded := 0
	for _, r := range rows {
		v, ok := policy.Apply(coerce.Float(r.Get(model.ReactionTime)))
		if !ok {
			excluded++
			continue
		}
		level := classify.Level(r.Get(model.LevelName))
		l, found := levels[level]
		if !found {
			l = newSamples()
			levels[level] = l
		}
		l.add(e.entityOf(r), v[0])
	}

	s := Summary{Excluded: excluded, Levels: make(map[string]Group, len(levels))}
	// entity -> per-level means, split by modality kind.
	single := make(map[string][]float64)
	combined := make(map[string][]float64)
	all := newSamples()
	trials := 0
	for _, level := range sortedKeys(levels) {
		g := levels[level].group()
		s.Levels[level] = g
		trials += g.Trials
		for _, id := range sortedKeys(g.ByEntity) {
			m := g.ByEntity[id]
			all.add(id, m)
			if classify.IsSingleModality(level) {
				single[id] = append(single[id], m)
			} else {
				combined[id] = append(combined[id], m)
			}
		}
	}
	if trials == 0 {
		return s
	}

	// Per-entity value is the mean of that entity's per-level means.
	s.Group = all.group()
	s.Trials = trials

	s.Modality = make(map[string]Split, len(s.ByEntity))
	var singles, combos []float64
	for _, id := range sortedKeys(s.ByEntity) {
		sp := Split{Single: mean(single[id]), Combined: mean(combined[id])}
		s.Modality[id] = sp
		if !math.IsNaN(sp.Single) {
			singles = append(singles, sp.Single)
		}
		if !math.IsNaN(sp.Combined) {
			combos = append(combos, sp.Combined)
		}
	}
	s.ModalityOverall = &Split{Single: mean(singles), Combined: mean(combos)}
	return s
}

// gridLabels describes the 3x3 grid, positions numbered row by row from the top left.
var gridLabels = map[int]string{
	1: "top-left",
	2: "top-center",
	3: "top-right",
	4: "middle-left",
	5: "center",
	6: "middle-right",
	7: "bottom-left",
	8: "bottom-center",
	9: "bottom-right",
}

// GridLabel returns the fixed description of a grid position, or "unknown"
// outside 1..9.
func GridLabel(idx int) string {
	if l, ok := gridLabels[idx]; ok {
		return l
	}
	return "unknown"
}

// samples collects values per entity in insertion order.
type samples struct {
	byEntity map[string][]float64
}

func newSamples() *samples {
	return &samples{byEntity: make(map[string][]float64)}
}

func (s *samples) add(entity string, v float64) {
	s.byEntity[entity] = append(s.byEntity[entity], v)
}

// group reduces the samples to per-entity means and their mean. Entities are
// visited in sorted order so the overall is reproducible to the last bit.
func (s *samples) group() Group {
	g := Group{ByEntity: make(map[string]float64, len(s.byEntity))}
	means := make([]float64, 0, len(s.byEntity))
	for _, id := range sortedKeys(s.byEntity) {
		vals := s.byEntity[id]
		m := mean(vals)
		g.ByEntity[id] = m
		means = append(means, m)
		g.Trials += len(vals)
	}
	g.Overall = mean(means)
	return g
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
