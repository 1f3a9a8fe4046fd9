package model_test

import (
	"testing"

	model "github.com/okian/trialstats/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestFields(t *testing.T) {
	convey.Convey("Given the canonical header", t, func() {
		header := model.Fields()

		convey.Convey("Then it starts with identity fields and ends with process", func() {
			convey.So(len(header), convey.ShouldEqual, model.FieldCount())
			convey.So(header[0], convey.ShouldEqual, model.UserID)
			convey.So(header[1], convey.ShouldEqual, model.DeviceType)
			convey.So(header[len(header)-1], convey.ShouldEqual, model.Process)
		})

		convey.Convey("When the returned slice is modified", func() {
			header[0] = "changed"

			convey.Convey("Then the canonical order is unaffected", func() {
				convey.So(model.Fields()[0], convey.ShouldEqual, model.UserID)
			})
		})
	})
}

func TestRow_Get(t *testing.T) {
	convey.Convey("Given a canonical row", t, func() {
		row := make(model.Row, model.FieldCount())
		i, _ := model.Index(model.LevelName)
		row[i] = "practicevoice"

		convey.So(row.Get(model.LevelName), convey.ShouldEqual, "practicevoice")
		convey.So(row.Get(model.UserID), convey.ShouldEqual, "")
		convey.So(row.Get("not_a_field"), convey.ShouldEqual, "")
		convey.So(row.Map()[model.LevelName], convey.ShouldEqual, "practicevoice")
	})
}

func TestTable_Canonical(t *testing.T) {
	convey.Convey("Given a table written under an older header order", t, func() {
		table := model.Table{
			Header: []string{model.LevelName, model.UserID, "legacy_column"},
			Rows: [][]string{
				{"practicegrab", "u1", "x"},
				{"eye"}, // short row
			},
		}

		rows := table.Canonical()

		convey.Convey("Then values land in canonical positions", func() {
			convey.So(len(rows), convey.ShouldEqual, 2)
			convey.So(rows[0].Get(model.UserID), convey.ShouldEqual, "u1")
			convey.So(rows[0].Get(model.LevelName), convey.ShouldEqual, "practicegrab")
			convey.So(rows[0].Get(model.DeviceType), convey.ShouldEqual, "")
			convey.So(len(rows[0]), convey.ShouldEqual, model.FieldCount())
		})

		convey.Convey("Then missing columns become empty", func() {
			convey.So(rows[1].Get(model.LevelName), convey.ShouldEqual, "eye")
			convey.So(rows[1].Get(model.UserID), convey.ShouldEqual, "")
		})
	})
}
