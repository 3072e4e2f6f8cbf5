package rating_test

import (
	"math"
	"testing"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKFactor(t *testing.T) {
	Convey("Given the K-factor selection rules", t, func() {
		Convey("When the track has low confidence", func() {
			Convey("Then it should use the fast-moving K regardless of rating", func() {
				So(rating.KFactor(1500, 0), ShouldEqual, 32)
				So(rating.KFactor(1500, 29), ShouldEqual, 32)
				So(rating.KFactor(2500, 10), ShouldEqual, 32)
			})
		})

		Convey("When the track is rated above the high cutoff", func() {
			Convey("Then it should be damped even at high confidence", func() {
				So(rating.KFactor(2101, 30), ShouldEqual, 16)
				So(rating.KFactor(2500, 500), ShouldEqual, 16)
			})
		})

		Convey("When the track is established below the high cutoff", func() {
			Convey("Then it should use the established K", func() {
				So(rating.KFactor(1800, 101), ShouldEqual, 24)
				So(rating.KFactor(2100, 1000), ShouldEqual, 24)
			})
		})

		Convey("When none of the special cases apply", func() {
			Convey("Then it should use the default K", func() {
				So(rating.KFactor(1500, 30), ShouldEqual, 32)
				So(rating.KFactor(1500, 50), ShouldEqual, 32)
				So(rating.KFactor(1500, 100), ShouldEqual, 32)
			})
		})
	})
}

func TestExpectedScore(t *testing.T) {
	Convey("Given the logistic expectation against the 1500 baseline", t, func() {
		Convey("When the track sits exactly at the baseline", func() {
			So(rating.ExpectedScore(1500), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("When the track is 400 points above the baseline", func() {
			// 1/(1+10^-1)
			So(rating.ExpectedScore(1900), ShouldAlmostEqual, 10.0/11.0, 1e-12)
		})

		Convey("When the track is 400 points below the baseline", func() {
			So(rating.ExpectedScore(1100), ShouldAlmostEqual, 1.0/11.0, 1e-12)
		})

		Convey("Then it should be monotonically increasing in rating", func() {
			So(rating.ExpectedScore(1600), ShouldBeGreaterThan, rating.ExpectedScore(1400))
		})
	})
}

func TestActualScore(t *testing.T) {
	Convey("Given the outcome scores per event kind", t, func() {
		So(rating.ActualScore(model.KindPlay), ShouldEqual, 0.6)
		So(rating.ActualScore(model.KindSkip), ShouldEqual, 0.2)
		So(rating.ActualScore(model.KindDownload), ShouldEqual, 0.8)

		Convey("And kinds outside the rating set come out neutral", func() {
			So(rating.ActualScore(model.KindPause), ShouldEqual, 0.5)
			So(rating.ActualScore(model.KindResume), ShouldEqual, 0.5)
		})
	})
}

func TestChange(t *testing.T) {
	Convey("Given a track at the baseline with default K", t, func() {
		const conf = 50

		Convey("When a play is applied", func() {
			change := rating.Change(1500, conf, model.KindPlay)

			Convey("Then the rating should move up by K*(0.6-0.5)", func() {
				So(change, ShouldAlmostEqual, 3.2, 1e-9)
			})
		})

		Convey("When a skip is applied", func() {
			change := rating.Change(1500, conf, model.KindSkip)

			Convey("Then the rating should move down by K*(0.5-0.2)", func() {
				So(change, ShouldAlmostEqual, -9.6, 1e-9)
			})
		})

		Convey("When a download is applied", func() {
			change := rating.Change(1500, conf, model.KindDownload)

			Convey("Then the rating should move up by K*(0.8-0.5)", func() {
				So(change, ShouldAlmostEqual, 9.6, 1e-9)
			})
		})
	})

	Convey("Given the engine is a pure function", t, func() {
		Convey("Then identical inputs should give identical outputs", func() {
			a := rating.Change(1725.35, 42, model.KindPlay)
			b := rating.Change(1725.35, 42, model.KindPlay)
			So(a, ShouldEqual, b)
		})
	})

	Convey("Given a highly rated track", t, func() {
		Convey("When plays keep coming in", func() {
			change := rating.Change(2400, 500, model.KindPlay)

			Convey("Then the expectation term should push the change negative", func() {
				// Expected score at 2400 is ~0.995, above the 0.6 play outcome.
				So(change, ShouldBeLessThan, 0)
			})
		})

		Convey("Then no clamping is applied beyond the K damping", func() {
			// A skip at a very high rating produces a large negative swing.
			change := rating.Change(2400, 500, model.KindSkip)
			expected := 16 * (0.2 - rating.ExpectedScore(2400))
			So(change, ShouldAlmostEqual, expected, 1e-9)
			So(math.Abs(change), ShouldBeGreaterThan, 10)
		})
	})
}
