package config_test

import (
	"runtime"
	"testing"

	"github.com/harmonia-fm/harmonia/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfigNew(t *testing.T) {
	Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		Convey("Then it should have sensible defaults", func() {
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.ChunkSize, ShouldEqual, 10)
			So(cfg.ChunkTimeoutMS, ShouldEqual, 5_000)
			So(cfg.MaxAttempts, ShouldEqual, 3)
			So(cfg.RetryBackoffMS, ShouldEqual, 2_000)
			So(cfg.WorkerCount, ShouldEqual, runtime.NumCPU()*2)
			So(cfg.DedupeSize, ShouldEqual, 50_000)
			So(cfg.MaxRecommendLimit, ShouldEqual, 100)
		})
	})
}
