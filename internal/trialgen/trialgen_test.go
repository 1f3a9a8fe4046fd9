package trialgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/internal/domain/model"
	"github.com/okian/trialstats/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		trials := NewGenerator(7, 0).Generate(2, 3)

		Convey("It yields one trial per user, level and trial number", func() {
			So(len(trials), ShouldEqual, 2*3*len(Levels))
		})

		Convey("Every level maps to a known family", func() {
			seen := map[classify.Family]bool{}
			for _, tr := range trials {
				f, ok := classify.Classify(tr.Fields[model.LevelName].(string))
				So(ok, ShouldBeTrue)
				seen[f] = true
			}
			So(len(seen), ShouldEqual, len(classify.Families))
		})

		Convey("Idempotency keys are unique", func() {
			keys := map[string]bool{}
			for _, tr := range trials {
				keys[tr.Key] = true
			}
			So(len(keys), ShouldEqual, len(trials))
		})

		Convey("Grid trials carry a cell in 1..9", func() {
			for _, tr := range trials {
				if tr.Fields[model.LevelName] == "coupongame" {
					idx := tr.Fields[model.GridIndex].(int)
					So(idx, ShouldBeBetweenOrEqual, 1, 9)
				}
			}
		})
	})

	Convey("Given two generators with the same seed", t, func() {
		a := NewGenerator(42, 0.1).Generate(3, 2)
		b := NewGenerator(42, 0.1).Generate(3, 2)

		Convey("They replay the same participants, keys and metrics", func() {
			So(len(a), ShouldEqual, len(b))
			for i := range a {
				So(a[i].Key, ShouldEqual, b[i].Key)
				for _, f := range []string{model.UserID, model.DeviceType, model.LevelName, model.Result, model.ReactionTime, model.GridIndex, model.GazeX} {
					So(a[i].Fields[f], ShouldEqual, b[i].Fields[f])
				}
			}
		})

		Convey("A different seed yields different keys", func() {
			c := NewGenerator(43, 0.1).Generate(3, 2)
			So(c[0].Key, ShouldNotEqual, a[0].Key)
		})
	})

	Convey("Given a generator that always misses", t, func() {
		trials := NewGenerator(7, 1).Generate(1, 1)
		for _, tr := range trials {
			if tr.Fields[model.LevelName] == "practicevoice" {
				So(tr.Fields[model.Result], ShouldEqual, "n/a")
			}
		}
	})
}

// fakeService records uploads and answers /aggregate with every family.
type fakeService struct {
	mu      sync.Mutex
	keys    map[string]bool
	partial bool
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		key := r.Header.Get(idempotencyHeader)
		status := "ok"
		switch {
		case f.keys[key]:
			status = "duplicate"
		case f.partial:
			status = "partial"
		}
		f.keys[key] = true
		_ = json.NewEncoder(w).Encode(UploadResponse{Status: status})
	})
	mux.HandleFunc("/aggregate", func(w http.ResponseWriter, _ *http.Request) {
		doc := map[string]any{}
		for _, fam := range classify.Families {
			doc[string(fam)] = map[string]any{"overall": 1}
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	return mux
}

func TestRun(t *testing.T) {
	Convey("Given a service that accepts uploads", t, func() {
		fake := &fakeService{keys: map[string]bool{}}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		out := filepath.Join(t.TempDir(), "trials.json")
		cfg := &Config{
			BaseURL:        srv.URL,
			Users:          2,
			TrialsPerLevel: 2,
			Workers:        4,
			Timeout:        5 * time.Second,
			Seed:           1,
			OutputFile:     out,
		}

		Convey("When the run completes", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then every trial is stored and saved", func() {
				So(err, ShouldBeNil)
				So(stats.Submitted, ShouldEqual, stats.TrialsGenerated)
				So(stats.Stored, ShouldEqual, stats.TrialsGenerated)
				So(stats.Families, ShouldEqual, len(classify.Families))

				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved []Trial
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(len(saved), ShouldEqual, stats.TrialsGenerated)
			})
		})

		Convey("When mirrors are failing", func() {
			fake.partial = true
			cfg.OutputFile = ""
			stats, err := Run(context.Background(), cfg)

			Convey("Then uploads are counted as partial", func() {
				So(err, ShouldBeNil)
				So(stats.Partial, ShouldEqual, stats.TrialsGenerated)
			})
		})
	})

	Convey("Given an aggregate missing families", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
		mux.HandleFunc("/upload", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		mux.HandleFunc("/aggregate", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"voice_accuracy":{}}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		_, err := Run(context.Background(), &Config{BaseURL: srv.URL, Users: 1, TrialsPerLevel: 1, Workers: 1, Timeout: time.Second, Seed: 3})
		So(errors.Is(err, ErrMissingFamilies), ShouldBeTrue)
	})

	Convey("Given an unhealthy service", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := Run(context.Background(), &Config{BaseURL: srv.URL, Workers: 1, Timeout: time.Second})
		So(err, ShouldNotBeNil)
	})
}
