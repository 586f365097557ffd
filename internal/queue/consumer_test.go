package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubev2v/build-orchestrator/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"
)

const testQueue = "build_jobs"

var _ = Describe("consumer", func() {
	var (
		broker   *fakeBroker
		consumer *queue.Consumer
		done     chan error
	)

	publish := func(bodies ...string) {
		for _, b := range bodies {
			broker.push(testQueue, amqp.Publishing{DeliveryMode: amqp.Persistent, Body: []byte(b)}, false)
		}
	}

	start := func(handler queue.Handler, maxInFlight int) {
		done = make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- consumer.Start(context.TODO(), testQueue, handler, maxInFlight)
		}()
	}

	BeforeEach(func() {
		broker = newFakeBroker()
		consumer = queue.NewConsumer("amqp://localhost",
			queue.WithConsumerDialer(broker.Dial),
			queue.WithReconnectDelay(50*time.Millisecond),
		)
	})

	AfterEach(func() {
		consumer.Stop()
		if done != nil {
			Eventually(done).Should(Receive())
		}
		done = nil
	})

	It("rejects a non positive in-flight cap", func() {
		err := consumer.Start(context.TODO(), testQueue, func(context.Context, []byte) error { return nil }, 0)
		Expect(err).NotTo(BeNil())
	})

	It("acks messages once the handler succeeds", func() {
		var handled atomic.Int32
		start(func(_ context.Context, body []byte) error {
			handled.Add(1)
			return nil
		}, 2)
		publish("a", "b", "c")

		Eventually(broker.Acked).Should(Equal(3))
		Expect(handled.Load()).To(Equal(int32(3)))
		Expect(broker.Nacked()).To(BeEmpty())
		Expect(broker.Durable(testQueue)).To(BeTrue())
		Expect(consumer.State()).To(Equal(queue.StateConnected))
	})

	It("drops messages whose handler fails", func() {
		start(func(_ context.Context, body []byte) error {
			if string(body) == "bad" {
				return errors.New("unexpected payload")
			}
			return nil
		}, 1)
		publish("bad", "good")

		Eventually(broker.Acked).Should(Equal(1))
		Eventually(broker.Nacked).Should(Equal([][]byte{[]byte("bad")}))
		Consistently(func() int { return len(broker.Pending(testQueue)) }, 200*time.Millisecond).Should(BeZero())
	})

	It("treats a panicking handler as a failed one", func() {
		start(func(context.Context, []byte) error {
			panic("boom")
		}, 1)
		publish("a")

		Eventually(broker.Nacked).Should(HaveLen(1))
	})

	It("requeues messages on ErrRequeue", func() {
		var calls atomic.Int32
		start(func(context.Context, []byte) error {
			if calls.Add(1) == 1 {
				return queue.ErrRequeue
			}
			return nil
		}, 1)
		publish("a")

		Eventually(broker.Acked).Should(Equal(1))
		Expect(calls.Load()).To(Equal(int32(2)))
		Expect(broker.Nacked()).To(BeEmpty())
	})

	It("never runs more handlers than the in-flight cap", func() {
		const maxInFlight = 3
		var (
			active  atomic.Int32
			maxSeen atomic.Int32
			total   atomic.Int32
		)
		start(func(context.Context, []byte) error {
			n := active.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			active.Add(-1)
			total.Add(1)
			return nil
		}, maxInFlight)

		for i := 0; i < 12; i++ {
			publish(fmt.Sprintf("job-%d", i))
		}

		Eventually(total.Load, 5*time.Second).Should(Equal(int32(12)))
		Expect(maxSeen.Load()).To(BeNumerically("<=", maxInFlight))
		Expect(maxSeen.Load()).To(BeNumerically(">", 1))
	})

	It("reconnects after the broker drops the connection", func() {
		var (
			mu     sync.Mutex
			bodies []string
		)
		start(func(_ context.Context, body []byte) error {
			mu.Lock()
			defer mu.Unlock()
			bodies = append(bodies, string(body))
			return nil
		}, 1)

		publish("before")
		Eventually(broker.Acked).Should(Equal(1))

		broker.DropConnections()
		publish("after")

		Eventually(broker.Acked, 2*time.Second).Should(Equal(2))
		Expect(broker.Dials()).To(Equal(2))
		mu.Lock()
		Expect(bodies).To(Equal([]string{"before", "after"}))
		mu.Unlock()
		Eventually(consumer.State).Should(Equal(queue.StateConnected))
	})

	It("notices a dropped connection while waiting for a free handler slot", func() {
		release := make(chan struct{})
		var calls atomic.Int32
		start(func(context.Context, []byte) error {
			calls.Add(1)
			<-release
			return nil
		}, 1)
		publish("a")
		Eventually(calls.Load).Should(Equal(int32(1)))

		// the handler keeps its slot while "a" comes back on a new connection
		broker.DropConnections()
		Eventually(broker.Dials, 2*time.Second).Should(Equal(2))
		Eventually(func() int { return len(broker.Pending(testQueue)) }).Should(BeZero())

		broker.DropConnections()
		Eventually(broker.Dials, 2*time.Second).Should(Equal(3))
		Expect(calls.Load()).To(Equal(int32(1)))

		close(release)
		Eventually(broker.Acked, 2*time.Second).Should(Equal(1))
	})

	It("keeps retrying while the broker is unreachable", func() {
		broker.failDials = 3
		start(func(context.Context, []byte) error { return nil }, 1)
		publish("a")

		Eventually(broker.Acked, 2*time.Second).Should(Equal(1))
		Expect(broker.Dials()).To(Equal(4))
	})

	It("returns from Start once stopped and waits for in-flight handlers", func() {
		release := make(chan struct{})
		var finished atomic.Bool
		start(func(context.Context, []byte) error {
			<-release
			finished.Store(true)
			return nil
		}, 1)
		publish("a")
		Eventually(func() int { return len(broker.Pending(testQueue)) }).Should(BeZero())

		consumer.Stop()
		Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
		Expect(consumer.State()).To(Equal(queue.StateClosing))

		close(release)
		Eventually(done).Should(Receive(BeNil()))
		Expect(finished.Load()).To(BeTrue())
		Expect(broker.Acked()).To(Equal(1))
		Expect(consumer.State()).To(Equal(queue.StateStopped))
		Expect(broker.OpenConns()).To(Equal(0))
		done = nil
	})

	It("can be stopped from several goroutines", func() {
		start(func(context.Context, []byte) error { return nil }, 1)
		Eventually(consumer.State).Should(Equal(queue.StateConnected))

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				consumer.Stop()
			}()
		}
		wg.Wait()
		Eventually(done).Should(Receive(BeNil()))
		done = nil
	})

	It("stops when its context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.TODO())
		done = make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- consumer.Start(ctx, testQueue, func(context.Context, []byte) error { return nil }, 1)
		}()
		Eventually(consumer.State).Should(Equal(queue.StateConnected))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		done = nil
	})
})

var _ = Describe("state", func() {
	It("has a readable name", func() {
		Expect(queue.StateDisconnected.String()).To(Equal("DISCONNECTED"))
		Expect(queue.StateConnecting.String()).To(Equal("CONNECTING"))
		Expect(queue.StateConnected.String()).To(Equal("CONNECTED"))
		Expect(queue.StateClosing.String()).To(Equal("CLOSING"))
		Expect(queue.StateStopped.String()).To(Equal("STOPPED"))
	})
})
