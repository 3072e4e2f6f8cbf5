package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/harmonia-fm/harmonia/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars() {
	for _, key := range []string{
		"HARMONIA_CONFIG", "HARMONIA_ADDR", "HARMONIA_DB_PATH",
		"HARMONIA_CHUNK_SIZE", "HARMONIA_MAX_ATTEMPTS", "HARMONIA_RETRY_BACKOFF_MS",
		"HARMONIA_QUEUE_SIZE", "HARMONIA_WORKER_COUNT", "HARMONIA_DEDUPE_SIZE",
		"HARMONIA_MAX_RECOMMEND_LIMIT", "HARMONIA_HISTORY_LIMIT", "HARMONIA_LOG_LEVEL",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "harmonia-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	_ = f.Close()
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	Convey("Given a config loader", t, func() {
		ctx := context.Background()

		Convey("When loading with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			Convey("Then it should carry the service defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9080")
				So(cfg.DBPath, ShouldEqual, "harmonia.db")
				So(cfg.ChunkSize, ShouldEqual, 10)
				So(cfg.MaxAttempts, ShouldEqual, 3)
				So(cfg.RetryBackoffMS, ShouldEqual, 2_000)
				So(cfg.EventQueueSize, ShouldEqual, 100_000)
				So(cfg.HistoryLimit, ShouldEqual, 50)
			})
		})

		Convey("When environment variables override defaults", func() {
			clearConfigEnvVars()
			_ = os.Setenv("HARMONIA_ADDR", ":8080")
			_ = os.Setenv("HARMONIA_CHUNK_SIZE", "20")
			_ = os.Setenv("HARMONIA_DB_PATH", "/tmp/harmonia-test.db")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":8080")
			So(cfg.ChunkSize, ShouldEqual, 20)
			So(cfg.DBPath, ShouldEqual, "/tmp/harmonia-test.db")
			// Untouched fields keep their defaults.
			So(cfg.MaxAttempts, ShouldEqual, 3)
		})

		Convey("When a YAML file is provided", func() {
			clearConfigEnvVars()
			path := createTempConfigFile(t, `
addr: ":9090"
chunk_size: 25
max_attempts: 5
history_limit: 10
`)
			_ = os.Setenv("HARMONIA_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9090")
			So(cfg.ChunkSize, ShouldEqual, 25)
			So(cfg.MaxAttempts, ShouldEqual, 5)
			So(cfg.HistoryLimit, ShouldEqual, 10)
		})

		Convey("When both file and env vars are set", func() {
			clearConfigEnvVars()
			path := createTempConfigFile(t, `
addr: ":9090"
chunk_size: 25
`)
			_ = os.Setenv("HARMONIA_CONFIG", path)
			_ = os.Setenv("HARMONIA_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			Convey("Then env vars should win", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.ChunkSize, ShouldEqual, 25)
			})
		})

		Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("HARMONIA_CONFIG", "/nonexistent/harmonia.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			So(err, ShouldNotBeNil)
		})

		Convey("When validation fails", func() {
			clearConfigEnvVars()
			_ = os.Setenv("HARMONIA_CHUNK_SIZE", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "chunk_size")
		})
	})
}
