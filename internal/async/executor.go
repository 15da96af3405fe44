package async

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

type workerKey struct{}

var ErrExecutorClosed = errors.New("executor is closed")

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// Executor is a thread-sensitive executor: every job runs on the same worker
// goroutine, one at a time, outside the event loop.
type Executor struct {
	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *logrus.Logger
}

func NewExecutor(logger *logrus.Logger) *Executor {
	e := &Executor{
		jobs:   make(chan job),
		done:   make(chan struct{}),
		logger: logger,
	}
	e.wg.Add(1)
	go e.work()
	return e
}

func (e *Executor) work() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.jobs:
			j.result <- e.runJob(j)
		case <-e.done:
			return
		}
	}
}

func (e *Executor) runJob(j job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Errorf("Recovered panic in synchronous task: %v", rec)
			err = fmt.Errorf("panic in synchronous task: %v", rec)
		}
	}()
	return j.fn(j.ctx)
}

// Run executes fn on the worker goroutine and waits for it to return. Calls
// made from the worker itself run inline.
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	syncCtx := context.WithValue(withoutEventLoop(ctx), workerKey{}, e)
	if owner, _ := ctx.Value(workerKey{}).(*Executor); owner == e {
		return fn(syncCtx)
	}

	j := job{ctx: syncCtx, fn: fn, result: make(chan error, 1)}
	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	}
	return <-j.result
}

// Handler runs next as a synchronous view on the worker goroutine.
func (e *Executor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := e.Run(r.Context(), func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		if err != nil {
			e.logger.Errorf("Synchronous view %s failed: %v", r.URL.Path, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}
