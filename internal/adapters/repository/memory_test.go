package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func seedTrack(id string) model.Track {
	return model.Track{
		ID:      id,
		Title:   "Track " + id,
		Artists: []string{"Cobalt Drift"},
		Genres:  []string{"electronic"},
		Rating:  model.BaselineRating,
		AddedAt: time.Now().UTC(),
	}
}

func TestMemoryCatalog(t *testing.T) {
	Convey("Given an in-memory catalog", t, func() {
		ctx := context.Background()
		stores := repository.NewMemoryStores()
		catalog := stores.Catalog()

		Convey("When fetching an unknown track", func() {
			_, err := catalog.Get(ctx, "missing")

			Convey("Then it should return ErrNotFound", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When putting and fetching a track", func() {
			So(catalog.Put(ctx, seedTrack("trk-1")), ShouldBeNil)
			got, err := catalog.Get(ctx, "trk-1")

			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, "trk-1")
			So(got.Rating, ShouldEqual, model.BaselineRating)
		})

		Convey("When putting a track without a rating", func() {
			So(catalog.Put(ctx, model.Track{ID: "trk-2", Title: "No Rating"}), ShouldBeNil)
			got, err := catalog.Get(ctx, "trk-2")

			Convey("Then it should start at the baseline", func() {
				So(err, ShouldBeNil)
				So(got.Rating, ShouldEqual, model.BaselineRating)
			})
		})

		Convey("When applying a delta", func() {
			So(catalog.Put(ctx, seedTrack("trk-1")), ShouldBeNil)

			d := model.TrackDelta{TrackID: "trk-1", RatingChange: 3.2}
			d.AddKind(model.KindPlay)
			So(catalog.ApplyDelta(ctx, d), ShouldBeNil)

			got, err := catalog.Get(ctx, "trk-1")
			So(err, ShouldBeNil)
			So(got.Rating, ShouldAlmostEqual, model.BaselineRating+3.2, 1e-9)
			So(got.Confidence, ShouldEqual, 1)
			So(got.TotalPlays, ShouldEqual, 1)

			Convey("And a delta for an unknown track should fail", func() {
				err := catalog.ApplyDelta(ctx, model.TrackDelta{TrackID: "missing"})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When fetching many tracks", func() {
			So(catalog.Put(ctx, seedTrack("trk-1")), ShouldBeNil)
			So(catalog.Put(ctx, seedTrack("trk-2")), ShouldBeNil)

			got, err := catalog.GetMany(ctx, []string{"trk-1", "trk-2", "missing"})

			Convey("Then unknown ids are skipped, not errors", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				_, hasMissing := got["missing"]
				So(hasMissing, ShouldBeFalse)
			})
		})

		Convey("When searching the catalog", func() {
			a := seedTrack("trk-1")
			a.Title = "Blue Hours"
			b := seedTrack("trk-2")
			b.Title = "Night Cab"
			So(catalog.Put(ctx, a), ShouldBeNil)
			So(catalog.Put(ctx, b), ShouldBeNil)

			matches, total, err := catalog.Search(ctx, "blue", 0, 10)
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 1)
			So(matches[0].ID, ShouldEqual, "trk-1")

			Convey("And artist names should match too", func() {
				_, total, err := catalog.Search(ctx, "cobalt", 0, 10)
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 2)
			})

			Convey("And a non-positive limit should be rejected", func() {
				_, _, err := catalog.Search(ctx, "", 0, 0)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryLedger(t *testing.T) {
	Convey("Given an in-memory ledger", t, func() {
		ctx := context.Background()
		stores := repository.NewMemoryStores()
		ledger := stores.Ledger()

		row := func(trackID string, change float64, kind model.EventKind) model.RatingEvent {
			return model.RatingEvent{
				TrackID: trackID, OldRating: 1500, NewRating: 1500 + change,
				Kind: kind, Change: change, CreatedAt: time.Now().UTC(),
			}
		}

		Convey("When appending and reading back rows", func() {
			So(ledger.Append(ctx, row("trk-1", 3.2, model.KindPlay)), ShouldBeNil)
			So(ledger.Append(ctx, row("trk-2", -9.6, model.KindSkip)), ShouldBeNil)
			So(ledger.Append(ctx, row("trk-1", 9.6, model.KindDownload)), ShouldBeNil)

			recent, err := ledger.RecentByTrack(ctx, "trk-1", 10)

			Convey("Then only that track's rows come back, newest first", func() {
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 2)
				So(recent[0].Kind, ShouldEqual, model.KindDownload)
				So(recent[1].Kind, ShouldEqual, model.KindPlay)
			})

			Convey("And the limit truncates from the newest end", func() {
				recent, err := ledger.RecentByTrack(ctx, "trk-1", 1)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)
				So(recent[0].Kind, ShouldEqual, model.KindDownload)
			})
		})

		Convey("When aggregating stats", func() {
			So(ledger.Append(ctx, row("trk-1", 3.2, model.KindPlay)), ShouldBeNil)
			So(ledger.Append(ctx, row("trk-1", -9.6, model.KindSkip)), ShouldBeNil)
			So(ledger.Append(ctx, row("trk-1", 9.6, model.KindDownload)), ShouldBeNil)

			stats, err := ledger.StatsByTrack(ctx, "trk-1")

			So(err, ShouldBeNil)
			So(stats.TotalChanges, ShouldEqual, 3)
			So(stats.Plays, ShouldEqual, 1)
			So(stats.Skips, ShouldEqual, 1)
			So(stats.Downloads, ShouldEqual, 1)
			So(stats.BiggestGain, ShouldAlmostEqual, 9.6, 1e-9)
			So(stats.BiggestLoss, ShouldAlmostEqual, -9.6, 1e-9)
		})
	})
}

func TestMemoryHistory(t *testing.T) {
	Convey("Given in-memory user history", t, func() {
		ctx := context.Background()
		stores := repository.NewMemoryStores()
		history := stores.History()

		entry := model.PlayEntry{TrackID: "trk-1", PlayedAt: time.Now().UTC(), CompletionRate: 0.8}

		Convey("When appending to a fresh month bucket", func() {
			So(history.AppendPlays(ctx, "user-1", "2024-03", []model.PlayEntry{entry}), ShouldBeNil)

			Convey("Then the bucket should be created with the entry", func() {
				So(len(stores.Bucket("user-1", "2024-03")), ShouldEqual, 1)
			})

			Convey("And appending again should extend, not replace", func() {
				So(history.AppendPlays(ctx, "user-1", "2024-03", []model.PlayEntry{entry, entry}), ShouldBeNil)
				So(len(stores.Bucket("user-1", "2024-03")), ShouldEqual, 3)
			})
		})

		Convey("When different users or months are involved", func() {
			So(history.AppendPlays(ctx, "user-1", "2024-03", []model.PlayEntry{entry}), ShouldBeNil)
			So(history.AppendPlays(ctx, "user-1", "2024-04", []model.PlayEntry{entry}), ShouldBeNil)
			So(history.AppendPlays(ctx, "user-2", "2024-03", []model.PlayEntry{entry}), ShouldBeNil)

			Convey("Then buckets should stay isolated", func() {
				So(len(stores.Bucket("user-1", "2024-03")), ShouldEqual, 1)
				So(len(stores.Bucket("user-1", "2024-04")), ShouldEqual, 1)
				So(len(stores.Bucket("user-2", "2024-03")), ShouldEqual, 1)
			})
		})
	})
}

func TestMemoryWithinTx(t *testing.T) {
	Convey("Given the commit-or-nothing transaction wrapper", t, func() {
		ctx := context.Background()
		stores := repository.NewMemoryStores()
		So(stores.Catalog().Put(ctx, seedTrack("trk-1")), ShouldBeNil)

		Convey("When the function succeeds", func() {
			err := stores.WithinTx(ctx, func(ctx context.Context, tx repository.Stores) error {
				d := model.TrackDelta{TrackID: "trk-1", RatingChange: 5}
				d.AddKind(model.KindPlay)
				if err := tx.Catalog().ApplyDelta(ctx, d); err != nil {
					return err
				}
				return tx.Ledger().Append(ctx, model.RatingEvent{TrackID: "trk-1", Change: 5})
			})

			Convey("Then both writes should be visible", func() {
				So(err, ShouldBeNil)
				got, err := stores.Catalog().Get(ctx, "trk-1")
				So(err, ShouldBeNil)
				So(got.Rating, ShouldAlmostEqual, model.BaselineRating+5, 1e-9)

				recent, err := stores.Ledger().RecentByTrack(ctx, "trk-1", 10)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)
			})
		})

		Convey("When the function fails after staging writes", func() {
			boom := errors.New("boom")
			err := stores.WithinTx(ctx, func(ctx context.Context, tx repository.Stores) error {
				d := model.TrackDelta{TrackID: "trk-1", RatingChange: 5}
				if err := tx.Catalog().ApplyDelta(ctx, d); err != nil {
					return err
				}
				if err := tx.Ledger().Append(ctx, model.RatingEvent{TrackID: "trk-1", Change: 5}); err != nil {
					return err
				}
				return boom
			})

			Convey("Then nothing should have been committed", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				got, getErr := stores.Catalog().Get(ctx, "trk-1")
				So(getErr, ShouldBeNil)
				So(got.Rating, ShouldEqual, model.BaselineRating)

				recent, ledgerErr := stores.Ledger().RecentByTrack(ctx, "trk-1", 10)
				So(ledgerErr, ShouldBeNil)
				So(recent, ShouldBeEmpty)
			})
		})

		Convey("When the context is already canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			err := stores.WithinTx(canceled, func(ctx context.Context, tx repository.Stores) error {
				return nil
			})

			Convey("Then the error should classify as transient", func() {
				So(errors.Is(err, repository.ErrTransient), ShouldBeTrue)
			})
		})
	})
}
