package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool closed")

type poolTask struct {
	fn   func()
	done chan struct{}
}

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	tasks     chan poolTask
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
}

func NewPool(size int) *Pool {
	p := &Pool{
		tasks:   make(chan poolTask),
		closing: make(chan struct{}),
		log:     zap.S().Named("pool"),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			p.run(t)
		case <-p.closing:
			return
		}
	}
}

func (p *Pool) run(t poolTask) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("task panicked", "panic", r)
		}
	}()
	t.fn()
}

// Submit hands fn to an idle worker and waits for it to return.
// It fails with ErrPoolClosed once Close was called, or with the context error while no worker is free.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.closing:
		return ErrPoolClosed
	default:
	}

	t := poolTask{fn: fn, done: make(chan struct{})}
	select {
	case p.tasks <- t:
	case <-p.closing:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-t.done
	return nil
}

// Close stops accepting tasks. Tasks already handed to a worker keep running.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
	})
}

// Wait blocks until Close was called and every worker finished its task.
func (p *Pool) Wait() {
	p.wg.Wait()
}
