package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/harmonia-fm/harmonia/internal/adapters/mq/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory event queue", t, func() {
		ctx := context.Background()

		Convey("When enqueueing within capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10))

			ok := q.Enqueue(ctx, queue.Event{TrackID: "trk-1"})

			So(ok, ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)
		})

		Convey("When the queue is full", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))
			So(q.Enqueue(ctx, queue.Event{TrackID: "trk-1"}), ShouldBeTrue)
			So(q.Enqueue(ctx, queue.Event{TrackID: "trk-2"}), ShouldBeTrue)

			Convey("Then the next enqueue reports backpressure without blocking", func() {
				So(q.Enqueue(ctx, queue.Event{TrackID: "trk-3"}), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When dequeuing", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10))
			for i := range 3 {
				So(q.Enqueue(ctx, queue.Event{TrackID: fmt.Sprintf("trk-%d", i)}), ShouldBeTrue)
			}

			events := q.Dequeue(ctx)

			Convey("Then events come out in order", func() {
				for i := range 3 {
					select {
					case e := <-events:
						So(e.TrackID, ShouldEqual, fmt.Sprintf("trk-%d", i))
					case <-time.After(time.Second):
						t.Fatal("timed out waiting for event")
					}
				}
			})
		})

		Convey("When the queue is closed", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10))
			So(q.Enqueue(ctx, queue.Event{TrackID: "trk-1"}), ShouldBeTrue)

			So(q.Close(), ShouldBeNil)

			Convey("Then intake stops but the remaining event drains", func() {
				So(q.Enqueue(ctx, queue.Event{TrackID: "trk-2"}), ShouldBeFalse)

				events := q.Dequeue(ctx)
				select {
				case e := <-events:
					So(e.TrackID, ShouldEqual, "trk-1")
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for drained event")
				}

				// After draining, the channel closes.
				select {
				case _, open := <-events:
					So(open, ShouldBeFalse)
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for channel close")
				}
			})

			Convey("And closing twice is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
