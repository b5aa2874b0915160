package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/logger"
)

// newTestPool creates a pool for tests.
// Callers should "wp.Close()" to drain submitted jobs before asserting state.
func newTestPool(workers, queue uint) *Pool {
	wp, err := NewPool(&Config{
		Name:       "test",
		NumWorkers: workers,
		QueueSize:  queue,
		Logger:     logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())
	return wp
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Submit", func() {
		It("runs jobs in submission order with a single worker", func() {
			wp := newTestPool(1, 0)

			var (
				mu    sync.Mutex
				order []int
			)
			for i := range 50 {
				Expect(wp.Submit(ctx, func() {
					mu.Lock()
					defer mu.Unlock()
					order = append(order, i)
				})).To(Succeed())
			}
			wp.Close()

			Expect(order).To(HaveLen(50))
			for i, v := range order {
				Expect(v).To(Equal(i))
			}
		})

		It("honours context cancellation while the queue is full", func() {
			wp := newTestPool(1, 1)
			release := make(chan struct{})
			started := make(chan struct{})

			Expect(wp.Submit(ctx, func() {
				close(started)
				<-release
			})).To(Succeed())
			<-started
			Expect(wp.Submit(ctx, func() {})).To(Succeed())

			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			Expect(wp.Submit(cctx, func() {})).To(MatchError(context.DeadlineExceeded))

			close(release)
			wp.Close()
		})

		It("fails once the pool is closed", func() {
			wp := newTestPool(1, 0)
			wp.Close()
			Expect(wp.Submit(ctx, func() {})).To(MatchError(ErrClosed))
		})
	})

	Describe("TrySubmit", func() {
		It("returns true when the queue has capacity", func() {
			wp := newTestPool(1, 0)
			var ran atomic.Bool
			Expect(wp.TrySubmit(func() { ran.Store(true) })).To(BeTrue())
			wp.Close()
			Expect(ran.Load()).To(BeTrue())
		})

		It("returns false when the queue is full", func() {
			wp := newTestPool(1, 1)
			release := make(chan struct{})
			started := make(chan struct{})

			Expect(wp.TrySubmit(func() {
				close(started)
				<-release
			})).To(BeTrue())
			<-started
			Expect(wp.TrySubmit(func() {})).To(BeTrue())
			Expect(wp.TrySubmit(func() {})).To(BeFalse())

			close(release)
			wp.Close()
		})

		It("returns false after Close", func() {
			wp := newTestPool(1, 0)
			wp.Close()
			Expect(wp.TrySubmit(func() {})).To(BeFalse())
		})
	})

	Describe("Close", func() {
		It("drains queued jobs and survives panics", func() {
			wp := newTestPool(2, 0)
			var count atomic.Int32

			Expect(wp.Submit(ctx, func() { panic("boom") })).To(Succeed())
			for range 10 {
				Expect(wp.Submit(ctx, func() { count.Add(1) })).To(Succeed())
			}
			wp.Close()
			wp.Close()

			Expect(count.Load()).To(Equal(int32(10)))
		})
	})
})
