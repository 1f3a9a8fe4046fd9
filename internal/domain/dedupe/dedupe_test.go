package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/trialstats/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When reserving keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				st := d.Reserve(ctx, "key-1")

				Convey("Then the caller owns it but it is not yet seen", func() {
					So(st, ShouldEqual, dedupe.Reserved)
					So(d.Size(), ShouldEqual, 0)
				})
			})

			Convey("And the key is still pending", func() {
				d.Reserve(ctx, "key-1")
				st := d.Reserve(ctx, "key-1")

				Convey("Then a second caller is told it is in flight", func() {
					So(st, ShouldEqual, dedupe.InFlight)
					So(st.String(), ShouldEqual, "in_flight")
				})
			})

			Convey("And the key was committed", func() {
				d.Reserve(ctx, "key-1")
				d.Commit(ctx, "key-1")

				Convey("Then it is seen", func() {
					So(d.Reserve(ctx, "key-1"), ShouldEqual, dedupe.Seen)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key is released after a failed append", func() {
				d.Reserve(ctx, "key-1")
				d.Release(ctx, "key-1")

				Convey("Then a retry can reserve it again", func() {
					So(d.Reserve(ctx, "key-1"), ShouldEqual, dedupe.Reserved)
					So(d.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When the bound is exceeded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			for _, k := range []string{"a", "b", "c"} {
				d.Reserve(ctx, k)
				d.Commit(ctx, k)
			}

			Convey("Then the oldest key is forgotten", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Reserve(ctx, "c"), ShouldEqual, dedupe.Seen)
				So(d.Reserve(ctx, "a"), ShouldEqual, dedupe.Reserved)
			})
		})

		Convey("When running unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 100; i++ {
				k := fmt.Sprintf("k-%d", i)
				d.Reserve(ctx, k)
				d.Commit(ctx, k)
			}

			Convey("Then every key is kept", func() {
				So(d.Size(), ShouldEqual, 100)
				So(d.Reserve(ctx, "k-0"), ShouldEqual, dedupe.Seen)
			})
		})

		Convey("When the same key races from many goroutines", func() {
			d := dedupe.NewInMemoryDeduper()
			var owners int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if d.Reserve(ctx, "shared") == dedupe.Reserved {
						atomic.AddInt64(&owners, 1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one caller owns it", func() {
				So(atomic.LoadInt64(&owners), ShouldEqual, 1)
			})
		})
	})
}
