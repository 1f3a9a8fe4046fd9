package trialgen

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trialstats/internal/domain/model"
)

// Levels played by every synthetic participant.
var Levels = []string{
	"practicegaze", "practiceeye", "practicevoice", "practicepoint", "practicegrab",
	"coupongame",
	"eye", "voice", "point", "grab",
	"eye+voice", "hand+voice", "hand+eye", "hand+eye+voice",
}

// Reaction time ranges in milliseconds.
const (
	gridReactionMin   = 250.0
	gridReactionRange = 900.0
	singleLatencyMin  = 400.0
	comboLatencyMin   = 550.0
	latencyRange      = 700.0
	gazeJitter        = 0.15
	gridCells         = 9
	hitRate           = 0.8
	dateLayout        = "2006-01-02 15:04:05.000"
)

var devices = []string{"hololens2", "quest3", "visionpro"}

// Generator produces trials from a seeded source. Two generators with the
// same seed yield the same participants, keys and metric values; only the
// wall-clock timestamps differ.
type Generator struct {
	rnd         *rand.Rand
	missingRate float64
	now         func() time.Time
}

// rngReader feeds uuid generation from the seeded source.
type rngReader struct{ rnd *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rnd.Uint32())
	}
	return len(p), nil
}

func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(rngReader{g.rnd})
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64, missingRate float64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rnd:         rand.New(rand.NewPCG(seed, seed>>1|1)),
		missingRate: missingRate,
		now:         time.Now,
	}
}

// Generate creates TrialsPerLevel trials for every user and level.
func (g *Generator) Generate(users, trialsPerLevel int) []Trial {
	out := make([]Trial, 0, users*trialsPerLevel*len(Levels))
	for u := 0; u < users; u++ {
		user := "participant-" + g.newID()[:8]
		device := devices[g.rnd.IntN(len(devices))]
		for _, level := range Levels {
			for n := 1; n <= trialsPerLevel; n++ {
				out = append(out, Trial{
					Key:    g.newID(),
					Fields: g.trial(user, device, level, n),
				})
			}
		}
	}
	return out
}

func (g *Generator) trial(user, device, level string, n int) map[string]any {
	start := g.now()
	f := map[string]any{
		model.UserID:     user,
		model.DeviceType: device,
		model.LevelName:  level,
		model.TrialNo:    n,
		model.StartTime:  start.Format(dateLayout),
		model.Timestamp:  start.UnixMilli(),
	}

	switch level {
	case "practicegaze", "practiceeye":
		f[model.TaskType] = "gaze"
		tx, ty, tz := g.rnd.Float64()*2-1, g.rnd.Float64()*2-1, 2.0
		f[model.GazeTargetX], f[model.GazeTargetY], f[model.GazeTargetZ] = tx, ty, tz
		f[model.GazeX] = tx + g.jitter()
		f[model.GazeY] = ty + g.jitter()
		f[model.GazeZ] = tz + g.jitter()
	case "practicevoice", "practicepoint", "practicegrab":
		f[model.TaskType] = "accuracy"
		f[model.InteractionType] = level[len("practice"):]
		f[model.TargetIndex] = g.rnd.IntN(gridCells)
		f[model.Result] = g.result()
	case "coupongame":
		f[model.TaskType] = "grid"
		f[model.GridIndex] = g.rnd.IntN(gridCells) + 1
		f[model.ReactionTime] = g.metric(gridReactionMin + g.rnd.Float64()*gridReactionRange)
	default:
		f[model.TaskType] = "modality"
		f[model.InteractionType] = level
		base := singleLatencyMin
		if len(level) > len("voice") {
			base = comboLatencyMin
		}
		rt := base + g.rnd.Float64()*latencyRange
		f[model.AppearTime] = start.Add(-time.Duration(rt) * time.Millisecond).Format(dateLayout)
		f[model.ReactionTime] = g.metric(rt)
	}
	f[model.EndTime] = start.Add(time.Second).Format(dateLayout)
	return f
}

func (g *Generator) jitter() float64 { return (g.rnd.Float64()*2 - 1) * gazeJitter }

func (g *Generator) result() any {
	if g.rnd.Float64() < g.missingRate {
		return "n/a"
	}
	if g.rnd.Float64() < hitRate {
		return 1
	}
	return 0
}

func (g *Generator) metric(v float64) any {
	if g.rnd.Float64() < g.missingRate {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
