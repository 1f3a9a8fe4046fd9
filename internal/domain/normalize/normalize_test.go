package normalize_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/okian/trialstats/internal/domain/model"
	"github.com/okian/trialstats/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func decode(body string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		panic(err)
	}
	return m
}

func TestRow(t *testing.T) {
	Convey("Given an incoming record", t, func() {
		in := decode(`{"user_id":"u1","level_name":"practicevoice","interaction_result":0,"reaction_time":1.25,"unknown":"x"}`)

		Convey("When it is normalized", func() {
			row := normalize.Row(in)

			Convey("Then every canonical column is present", func() {
				So(len(row), ShouldEqual, model.FieldCount())
			})

			Convey("Then explicit zero survives", func() {
				So(row.Get(model.Result), ShouldEqual, "0")
			})

			Convey("Then numbers keep their literal text", func() {
				So(row.Get(model.ReactionTime), ShouldEqual, "1.25")
			})

			Convey("Then absent fields are empty", func() {
				So(row.Get(model.DeviceType), ShouldEqual, "")
				So(row.Get(model.GazeX), ShouldEqual, "")
			})

			Convey("Then unknown fields are not retained", func() {
				for _, v := range row {
					So(v, ShouldNotEqual, "x")
				}
			})
		})

		Convey("When it is normalized twice", func() {
			So(normalize.Row(in), ShouldResemble, normalize.Row(in))
		})
	})

	Convey("Given values of native Go types", t, func() {
		row := normalize.Row(map[string]any{
			model.Result:       0,
			model.ReactionTime: 0.0,
			model.GridIndex:    int64(5),
			model.Process:      true,
			model.UserID:       nil,
			model.TaskType:     []any{"a", 1},
		})

		So(row.Get(model.Result), ShouldEqual, "0")
		So(row.Get(model.ReactionTime), ShouldEqual, "0")
		So(row.Get(model.GridIndex), ShouldEqual, "5")
		So(row.Get(model.Process), ShouldEqual, "true")
		So(row.Get(model.UserID), ShouldEqual, "")
		So(row.Get(model.TaskType), ShouldEqual, `["a",1]`)
	})

	Convey("Given a record from an older producer release", t, func() {
		row := normalize.Row(map[string]any{
			"userId":    "u7",
			"LevelName": "coupongame",
			"gridIndex": 3,
			"rt":        "0.4",
		})

		So(row.Get(model.UserID), ShouldEqual, "u7")
		So(row.Get(model.LevelName), ShouldEqual, "coupongame")
		So(row.Get(model.GridIndex), ShouldEqual, "3")
		So(row.Get(model.ReactionTime), ShouldEqual, "0.4")
	})

	Convey("Given both a literal and a drifted key for the same field", t, func() {
		row := normalize.Row(map[string]any{
			"userId":  "legacy",
			"user_id": "current",
		})

		So(row.Get(model.UserID), ShouldEqual, "current")
	})
}

func TestCanonicalKey(t *testing.T) {
	Convey("Given producer key spellings", t, func() {
		cases := map[string]string{
			"levelName":      "level_name",
			"LevelName":      "level_name",
			" level-name ":   "level_name",
			"UserID":         "user_id",
			"gazeTargetX":    "gaze_target_x",
			"HTTPStatus":     "http_status",
			"reaction_time":  "reaction_time",
			"trialNo":        "trial_no",
			"interaction.id": "interaction_id",
		}
		for in, want := range cases {
			So(normalize.CanonicalKey(in), ShouldEqual, want)
		}
	})
}
