// Package report renders aggregation results into their JSON transport form.
//
// Missing-data sentinels never leave this package as text: a non-finite
// Number encodes as JSON null.
package report

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/okian/trialstats/internal/domain/aggregate"
	"github.com/okian/trialstats/internal/domain/classify"
)

// Number is a float64 that encodes NaN and ±Inf as null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler; null decodes to NaN.
func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Group mirrors aggregate.Group.
type Group struct {
	ByEntity map[string]Number `json:"by_entity"`
	Overall  Number            `json:"overall"`
	Trials   int               `json:"trials"`
}

// Cell mirrors aggregate.Cell.
type Cell struct {
	Label string `json:"label"`
	Group
}

// Split mirrors aggregate.Split.
type Split struct {
	Single   Number `json:"single"`
	Combined Number `json:"combined"`
}

// Family is the transport form of one family summary.
type Family struct {
	Group
	Excluded        int              `json:"excluded"`
	Cells           map[string]Cell  `json:"cells,omitempty"`
	Levels          map[string]Group `json:"levels,omitempty"`
	Modality        map[string]Split `json:"modality,omitempty"`
	ModalityOverall *Split           `json:"modality_overall,omitempty"`
}

// Document is the body of GET /aggregate: family name to summary. Families
// without data are not present.
type Document map[string]Family

// Render converts an aggregation result to its transport form.
func Render(res aggregate.Result) Document {
	doc := make(Document, len(res.Families))
	for _, f := range classify.Families {
		s, ok := res.Families[f]
		if !ok {
			continue
		}
		doc[string(f)] = renderFamily(s)
	}
	return doc
}

func renderFamily(s aggregate.Summary) Family {
	out := Family{Group: renderGroup(s.Group), Excluded: s.Excluded}
	if len(s.Cells) > 0 {
		out.Cells = make(map[string]Cell, len(s.Cells))
		for idx, c := range s.Cells {
			out.Cells[strconv.Itoa(idx)] = Cell{Label: c.Label, Group: renderGroup(c.Group)}
		}
	}
	if len(s.Levels) > 0 {
		out.Levels = make(map[string]Group, len(s.Levels))
		for level, g := range s.Levels {
			out.Levels[level] = renderGroup(g)
		}
	}
	if len(s.Modality) > 0 {
		out.Modality = make(map[string]Split, len(s.Modality))
		for id, sp := range s.Modality {
			out.Modality[id] = renderSplit(sp)
		}
	}
	if s.ModalityOverall != nil {
		sp := renderSplit(*s.ModalityOverall)
		out.ModalityOverall = &sp
	}
	return out
}

func renderGroup(g aggregate.Group) Group {
	out := Group{
		ByEntity: make(map[string]Number, len(g.ByEntity)),
		Overall:  Number(g.Overall),
		Trials:   g.Trials,
	}
	for id, v := range g.ByEntity {
		out.ByEntity[id] = Number(v)
	}
	return out
}

func renderSplit(sp aggregate.Split) Split {
	return Split{Single: Number(sp.Single), Combined: Number(sp.Combined)}
}
