package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/trialstats/internal/adapters/http/api"
	service "github.com/okian/trialstats/internal/app"
	"github.com/okian/trialstats/internal/domain/report"
	"github.com/okian/trialstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDeps records calls and returns canned results.
type mockDeps struct {
	uploads   []map[string]any
	keys      []string
	uploadRes api.UploadResult
	uploadErr error
	doc       report.Document
	aggErr    error
	panicMsg  string
}

func (m *mockDeps) Upload(_ context.Context, raw map[string]any, key string) (api.UploadResult, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.uploads = append(m.uploads, raw)
	m.keys = append(m.keys, key)
	if m.uploadErr != nil {
		return api.UploadResult{}, m.uploadErr
	}
	if m.uploadRes.Status == "" {
		return api.UploadResult{Status: service.StatusOK}, nil
	}
	return m.uploadRes, nil
}

func (m *mockDeps) Aggregate(context.Context) (report.Document, error) {
	return m.doc, m.aggErr
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"driver": "csv", "uploads": 3}
}

func newMux(deps *mockDeps, opts ...api.ServerOption) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestUpload(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps, api.WithMaxUploadBytes(256))

		Convey("When a JSON object is posted", func() {
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1","reaction_time":0,"grid_index":5}`, "Idempotency-Key", "k1")

			Convey("Then it is acknowledged and forwarded with numbers intact", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"status": "ok", "message": "upload received"})
				So(len(deps.uploads), ShouldEqual, 1)
				So(deps.uploads[0]["reaction_time"], ShouldEqual, json.Number("0"))
				So(deps.keys[0], ShouldEqual, "k1")
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When the body is not an object", func() {
			for _, body := range []string{`[1,2]`, `"text"`, `null`, `{"a":1}{"b":2}`, `{broken`, ``} {
				w := do(mux, http.MethodPost, "/upload", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}

			Convey("Then nothing is forwarded", func() {
				So(deps.uploads, ShouldBeEmpty)
			})
		})

		Convey("When the body exceeds the limit", func() {
			w := do(mux, http.MethodPost, "/upload", `{"process":"`+strings.Repeat("x", 512)+`"}`)

			Convey("Then it is rejected as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(decode(w)["code"], ShouldEqual, "payload_too_large")
			})
		})

		Convey("When the store is unavailable", func() {
			deps.uploadErr = errors.Join(service.ErrUnavailable, errors.New("timeout"))
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`)

			Convey("Then a 503 error object is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				body := decode(w)
				So(body["code"], ShouldEqual, "store_unavailable")
				So(body["message"], ShouldContainSubstring, "timeout")
			})
		})

		Convey("When the same key is still being stored", func() {
			deps.uploadErr = service.ErrInFlight
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`, "Idempotency-Key", "k1")

			Convey("Then a retryable 409 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
				So(decode(w)["code"], ShouldEqual, "upload_in_progress")
			})
		})

		Convey("When a mirror failed", func() {
			deps.uploadRes = api.UploadResult{Status: service.StatusPartial, MirrorErrors: []string{"s3: denied"}}
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`)

			Convey("Then the partial success is reported", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["status"], ShouldEqual, "partial")
				So(body["mirror_errors"], ShouldResemble, []any{"s3: denied"})
			})
		})

		Convey("When the upload is a duplicate", func() {
			deps.uploadRes = api.UploadResult{Status: service.StatusDuplicate}
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`, "Idempotency-Key", "k1")

			Convey("Then the duplicate status is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "duplicate")
			})
		})

		Convey("When the handler panics", func() {
			deps.panicMsg = "boom"
			w := do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`, api.RequestIDHeader, "req-7")

			Convey("Then a 500 error object is returned and the request id kept", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-7")
			})
		})

		Convey("When the method is wrong", func() {
			w := do(mux, http.MethodGet, "/upload", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When the store is empty", func() {
			deps.aggErr = service.ErrEmpty
			w := do(mux, http.MethodGet, "/aggregate", "")

			Convey("Then the empty marker is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"status": "empty", "message": "no telemetry recorded"})
			})
		})

		Convey("When the store is unavailable", func() {
			deps.aggErr = service.ErrUnavailable
			w := do(mux, http.MethodGet, "/aggregate", "")

			Convey("Then a 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(w)["code"], ShouldEqual, "store_unavailable")
			})
		})

		Convey("When aggregation fails unexpectedly", func() {
			deps.aggErr = errors.New("decode failure")
			w := do(mux, http.MethodGet, "/aggregate", "")

			Convey("Then a 500 error object is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})

		Convey("When a summary holds a missing value", func() {
			deps.doc = report.Document{
				"voice_accuracy": {Group: report.Group{
					ByEntity: map[string]report.Number{"A": 0.5, "B": report.Number(math.NaN())},
					Overall:  0.5,
					Trials:   3,
				}},
			}
			w := do(mux, http.MethodGet, "/aggregate", "")

			Convey("Then it is rendered as null", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"B":null`)
				So(w.Body.String(), ShouldNotContainSubstring, "NaN")
				voice := decode(w)["voice_accuracy"].(map[string]any)
				So(voice["overall"], ShouldEqual, 0.5)
			})
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then the provider's stats are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["driver"], ShouldEqual, "csv")
			})
		})

		Convey("When health is requested", func() {
			_ = do(mux, http.MethodGet, "/stats", "")
			w := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then Prometheus metrics are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "trialstats_telemetry_http_requests_total")
			})
		})
	})
}

type badStats struct{}

func (badStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"events": make(chan int)}
}

func TestStatsEncodeFailure(t *testing.T) {
	Convey("Given a stats provider with a value JSON cannot encode", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockDeps{}, badStats{}).Register(context.Background(), mux)
		w := do(mux, http.MethodGet, "/stats", "")

		Convey("Then a 500 error object names the failed step", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(w)
			So(body["code"], ShouldEqual, "internal_error")
			So(body["message"], ShouldStartWith, "api.encode: ")
		})
	})
}

func TestPanicLogging(t *testing.T) {
	Convey("Given a server logging to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithFormat("json"), logger.WithOutput(&buf)), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		deps := &mockDeps{panicMsg: "boom"}
		mux := newMux(deps, api.WithLogger(logger.Get()))
		_ = do(mux, http.MethodPost, "/upload", `{"user_id":"u1"}`, api.RequestIDHeader, "req-9")

		Convey("Then the panic is logged with the request's id and path", func() {
			var entry map[string]any
			So(json.Unmarshal(buf.Bytes(), &entry), ShouldBeNil)
			So(entry["msg"], ShouldEqual, "handler panic")
			So(entry["requestId"], ShouldEqual, "req-9")
			So(entry["path"], ShouldEqual, "/upload")
			So(entry["panic"], ShouldEqual, "boom")
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.upload", api.ErrBadRequest, cause)

		Convey("Then kind and cause are both reachable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.upload: bad request: eof")
			So(api.NewKind("op", api.ErrInternal).Error(), ShouldEqual, "op: internal error")
			So(api.Wrap("op", cause).Error(), ShouldEqual, "op: eof")
		})
	})
}
