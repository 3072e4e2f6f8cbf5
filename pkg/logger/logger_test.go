package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/harmonia-fm/harmonia/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("When fetching the global instance", func() {
			l := logger.Get()
			So(l, ShouldNotBeNil)

			Convey("Then logging at every level should not panic", func() {
				ctx := context.Background()
				So(func() {
					l.Debug(ctx, "debug message", logger.String("k", "v"))
					l.Info(ctx, "info message", logger.Int("n", 1))
					l.Warn(ctx, "warn message", logger.Float64("f", 1.5))
					l.Error(ctx, "error message", logger.Error(errors.New("boom")))
				}, ShouldNotPanic)
			})
		})

		Convey("When deriving a named logger", func() {
			l := logger.Named("worker")
			So(l, ShouldNotBeNil)
			So(func() { l.Info(context.Background(), "hello") }, ShouldNotPanic)
		})

		Convey("When setting the level from a string", func() {
			So(logger.SetLevelString("debug"), ShouldBeNil)
			So(logger.SetLevelString("WARN"), ShouldBeNil)
			So(logger.SetLevelString("warning"), ShouldBeNil)
			So(logger.SetLevelString(""), ShouldBeNil)

			Convey("Then unknown levels should be rejected", func() {
				So(logger.SetLevelString("loud"), ShouldNotBeNil)
			})
		})

		Convey("When syncing", func() {
			So(logger.Sync(), ShouldBeNil)
		})
	})
}

func TestFieldConstructors(t *testing.T) {
	Convey("Given the field constructors", t, func() {
		So(logger.String("k", "v"), ShouldResemble, logger.Field{Key: "k", Value: "v"})
		So(logger.Int("n", 7), ShouldResemble, logger.Field{Key: "n", Value: 7})
		So(logger.Int64("n", int64(7)), ShouldResemble, logger.Field{Key: "n", Value: int64(7)})
		So(logger.Any("x", true), ShouldResemble, logger.Field{Key: "x", Value: true})

		err := errors.New("boom")
		So(logger.Error(err), ShouldResemble, logger.Field{Key: "error", Value: err})
	})
}
