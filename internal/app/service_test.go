package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/app"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/internal/domain/rating"
	"github.com/harmonia-fm/harmonia/internal/domain/recommend"
	"github.com/harmonia-fm/harmonia/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// newTestService starts a service over fresh in-memory stores.
func newTestService(t *testing.T, opts ...app.Option) (*app.Service, *repository.MemoryStores) {
	t.Helper()
	stores := repository.NewMemoryStores()
	opts = append([]app.Option{
		app.WithStores(stores),
		app.WithWorkerCount(2),
		app.WithRetryBackoffBase(time.Millisecond),
	}, opts...)
	svc := app.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("starting service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, stores
}

func putTrack(t *testing.T, svc *app.Service, id string, genres ...string) {
	t.Helper()
	if len(genres) == 0 {
		genres = []string{"electronic"}
	}
	err := svc.PutTrack(context.Background(), model.Track{
		ID:      id,
		Title:   "Track " + id,
		Artists: []string{"Cobalt Drift"},
		Genres:  genres,
	})
	if err != nil {
		t.Fatalf("seeding track %s: %v", id, err)
	}
}

func TestServiceApply(t *testing.T) {
	Convey("Given a started service with one catalog track", t, func() {
		svc, _ := newTestService(t)
		ctx := context.Background()
		putTrack(t, svc, "trk-1")

		Convey("When applying a play", func() {
			update, err := svc.Apply(ctx, "trk-1", model.KindPlay)

			Convey("Then the aggregate and the returned update should match the engine", func() {
				So(err, ShouldBeNil)
				want := rating.Change(model.BaselineRating, 0, model.KindPlay)
				So(update.Change, ShouldAlmostEqual, want, 1e-9)
				So(update.Rating, ShouldAlmostEqual, model.BaselineRating+want, 1e-9)
				So(update.Confidence, ShouldEqual, 1)
				So(update.Plays, ShouldEqual, 1)

				got, err := svc.Track(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.Rating, ShouldAlmostEqual, update.Rating, 1e-9)
			})

			Convey("And the ledger should hold a consistent row", func() {
				So(err, ShouldBeNil)
				hist, err := svc.RatingHistory(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 1)
				So(hist[0].NewRating, ShouldAlmostEqual, hist[0].OldRating+hist[0].Change, 1e-9)
			})
		})

		Convey("When applying a non-rating kind", func() {
			_, err := svc.Apply(ctx, "trk-1", model.KindPause)

			Convey("Then it should be rejected as validation", func() {
				So(errors.Is(err, app.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the track does not exist", func() {
			_, err := svc.Apply(ctx, "missing", model.KindPlay)

			Convey("Then nothing should be written", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				hist, histErr := svc.RatingHistory(ctx, "trk-1")
				So(histErr, ShouldBeNil)
				So(hist, ShouldBeEmpty)
			})
		})

		Convey("When many events are applied in sequence", func() {
			kinds := []model.EventKind{
				model.KindPlay, model.KindPlay, model.KindSkip,
				model.KindDownload, model.KindPlay, model.KindSkip,
			}
			for _, k := range kinds {
				_, err := svc.Apply(ctx, "trk-1", k)
				So(err, ShouldBeNil)
			}

			Convey("Then replaying the ledger should land on the aggregate rating", func() {
				got, err := svc.Track(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.Confidence, ShouldEqual, len(kinds))

				hist, err := svc.RatingHistory(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, len(kinds))

				replayed := model.BaselineRating
				for i := len(hist) - 1; i >= 0; i-- { // oldest first
					So(hist[i].OldRating, ShouldAlmostEqual, replayed, 1e-9)
					replayed += hist[i].Change
				}
				So(replayed, ShouldAlmostEqual, got.Rating, 1e-9)
			})
		})
	})
}

func TestServiceRecord(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, stores := newTestService(t)
		ctx := context.Background()
		putTrack(t, svc, "trk-1")

		ts := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

		Convey("When recording a play with a user attached", func() {
			err := svc.Record(ctx, model.ListenEvent{
				TrackID: "trk-1", UserID: "user-1", Kind: model.KindPlay,
				ClientTS: ts, CompletionRate: 0.9,
			})

			Convey("Then both the rating and the history should change together", func() {
				So(err, ShouldBeNil)
				got, err := svc.Track(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.Confidence, ShouldEqual, 1)
				So(len(stores.Bucket("user-1", "2024-03")), ShouldEqual, 1)
			})
		})

		Convey("When recording a pause", func() {
			err := svc.Record(ctx, model.ListenEvent{
				TrackID: "trk-1", UserID: "user-1", Kind: model.KindPause, ClientTS: ts,
			})

			Convey("Then history gets an entry but the rating does not move", func() {
				So(err, ShouldBeNil)
				got, err := svc.Track(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.Confidence, ShouldEqual, 0)
				So(got.Rating, ShouldEqual, model.BaselineRating)
				So(len(stores.Bucket("user-1", "2024-03")), ShouldEqual, 1)
			})
		})

		Convey("When recording a download with a user attached", func() {
			err := svc.Record(ctx, model.ListenEvent{
				TrackID: "trk-1", UserID: "user-1", Kind: model.KindDownload, ClientTS: ts,
			})

			Convey("Then the rating moves but no history entry is written", func() {
				So(err, ShouldBeNil)
				got, err := svc.Track(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.DownloadCount, ShouldEqual, 1)
				So(stores.Bucket("user-1", "2024-03"), ShouldBeEmpty)
			})
		})

		Convey("When recording a skip", func() {
			err := svc.Record(ctx, model.ListenEvent{
				TrackID: "trk-1", UserID: "user-1", Kind: model.KindSkip, ClientTS: ts,
			})

			Convey("Then the history entry should be marked skipped", func() {
				So(err, ShouldBeNil)
				bucket := stores.Bucket("user-1", "2024-03")
				So(len(bucket), ShouldEqual, 1)
				So(bucket[0].Skipped, ShouldBeTrue)
			})
		})

		Convey("When recording without a user", func() {
			err := svc.Record(ctx, model.ListenEvent{TrackID: "trk-1", Kind: model.KindPlay, ClientTS: ts})

			Convey("Then only the rating side happens", func() {
				So(err, ShouldBeNil)
				So(stores.Bucket("", "2024-03"), ShouldBeEmpty)
			})
		})
	})
}

func TestServiceEnqueue(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, _ := newTestService(t)
		ctx := context.Background()
		putTrack(t, svc, "trk-1")

		Convey("When enqueueing a malformed event", func() {
			_, err := svc.Enqueue(ctx, model.ListenEvent{Kind: model.KindPlay})

			So(errors.Is(err, app.ErrValidation), ShouldBeTrue)
		})

		Convey("When enqueueing the same event id twice", func() {
			e := model.ListenEvent{EventID: "evt-1", TrackID: "trk-1", Kind: model.KindPlay}

			dup1, err1 := svc.Enqueue(ctx, e)
			dup2, err2 := svc.Enqueue(ctx, e)

			Convey("Then the second submission should be flagged as duplicate", func() {
				So(err1, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(err2, ShouldBeNil)
				So(dup2, ShouldBeTrue)
			})
		})

		Convey("When enqueueing an event and waiting for the workers", func() {
			_, err := svc.Enqueue(ctx, model.ListenEvent{EventID: "evt-2", TrackID: "trk-1", Kind: model.KindPlay})
			So(err, ShouldBeNil)

			Convey("Then the event should eventually be applied", func() {
				So(func() bool {
					deadline := time.Now().Add(2 * time.Second)
					for time.Now().Before(deadline) {
						got, err := svc.Track(ctx, "trk-1")
						if err == nil && got.Confidence == 1 {
							return true
						}
						time.Sleep(10 * time.Millisecond)
					}
					return false
				}(), ShouldBeTrue)
			})
		})
	})
}

func TestServiceRecommend(t *testing.T) {
	Convey("Given a started service with a pinned scorer", t, func() {
		svc, _ := newTestService(t,
			app.WithRecommender(recommend.New(recommend.WithRandom(func() float64 { return 0.5 }))),
		)
		ctx := context.Background()
		putTrack(t, svc, "jazz-1", "jazz")
		putTrack(t, svc, "jazz-2", "jazz")
		putTrack(t, svc, "rock-1", "rock")

		Convey("When querying without filters", func() {
			res, err := svc.Recommend(ctx, "", "", nil, 10)

			So(err, ShouldBeNil)
			So(len(res.Tracks), ShouldEqual, 3)
			So(res.Fallback, ShouldBeFalse)
			So(res.BasedOn, ShouldBeNil)
		})

		Convey("When querying with a known seed", func() {
			res, err := svc.Recommend(ctx, "jazz-1", "", nil, 10)

			Convey("Then the seed should be echoed and excluded from results", func() {
				So(err, ShouldBeNil)
				So(res.BasedOn, ShouldNotBeNil)
				So(res.BasedOn.TrackID, ShouldEqual, "jazz-1")
				for _, r := range res.Tracks {
					So(r.Track.ID, ShouldNotEqual, "jazz-1")
				}
			})
		})

		Convey("When querying with an unknown seed", func() {
			res, err := svc.Recommend(ctx, "missing", "", nil, 10)

			Convey("Then the query degrades to unbiased instead of failing", func() {
				So(err, ShouldBeNil)
				So(res.BasedOn, ShouldBeNil)
				So(len(res.Tracks), ShouldEqual, 3)
			})
		})

		Convey("When the genre filter matches nothing", func() {
			res, err := svc.Recommend(ctx, "", "polka", nil, 10)

			Convey("Then the fallback flag should be set", func() {
				So(err, ShouldBeNil)
				So(res.Fallback, ShouldBeTrue)
				So(len(res.Tracks), ShouldEqual, 3)
			})
		})
	})
}

func TestServiceReads(t *testing.T) {
	Convey("Given a started service with catalog and ledger state", t, func() {
		svc, _ := newTestService(t, app.WithHistoryLimit(2))
		ctx := context.Background()
		putTrack(t, svc, "trk-1")

		for range 4 {
			_, err := svc.Apply(ctx, "trk-1", model.KindPlay)
			So(err, ShouldBeNil)
		}

		Convey("When reading rating history", func() {
			hist, err := svc.RatingHistory(ctx, "trk-1")

			Convey("Then the configured limit should apply, newest first", func() {
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 2)
				So(hist[0].Confidence, ShouldEqual, 3) // confidence before the newest event
			})
		})

		Convey("When reading history for an unknown track", func() {
			_, err := svc.RatingHistory(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When reading rating stats", func() {
			stats, err := svc.RatingStats(ctx, "trk-1")

			So(err, ShouldBeNil)
			So(stats.TotalChanges, ShouldEqual, 4)
			So(stats.Events["plays"], ShouldEqual, 4)
			So(stats.Confidence, ShouldEqual, 4)
		})

		Convey("When listing tracks with pagination", func() {
			putTrack(t, svc, "trk-2")
			putTrack(t, svc, "trk-3")

			page, err := svc.Tracks(ctx, "", 1, 2)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 3)
			So(page.Pages, ShouldEqual, 2)
			So(len(page.Tracks), ShouldEqual, 2)
		})

		Convey("When asking for service stats", func() {
			stats := svc.Stats(ctx)
			So(stats["started"], ShouldBeTrue)
		})
	})
}
