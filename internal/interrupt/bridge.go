// Package interrupt relays process interrupts to the running action: it sets
// the cancellation flag of the shared progress token and forwards a shutdown
// event to whichever executor is currently registered.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/chainopt/internal/solver"
	"go.uber.org/zap"
)

// Shutdowner is the only capability the bridge needs from an executor.
type Shutdowner interface {
	DeliverShutdown()
}

type executorRef struct {
	Shutdowner
}

// Bridge is created once per process. It never owns the progress token or
// the executor; both are borrowed for as long as they are registered.
type Bridge struct {
	progress    atomic.Pointer[solver.Progress]
	executor    atomic.Pointer[executorRef]
	interrupted atomic.Bool

	notify  chan struct{}
	signals chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
	logger  *zap.Logger
}

// New creates a bridge. Call Install to start receiving signals.
func New(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		notify:  make(chan struct{}, 1),
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		logger:  logger.Named("interrupt"),
	}
}

// SetProgress attaches the token whose cancellation flag interrupts set.
func (b *Bridge) SetProgress(p *solver.Progress) {
	b.progress.Store(p)
}

// Register makes e the executor notified on interrupt and returns a function
// clearing the registration. Clearing is a no-op if another executor has
// been registered since.
func (b *Bridge) Register(e Shutdowner) (unregister func()) {
	ref := &executorRef{Shutdowner: e}
	b.executor.Store(ref)
	return func() {
		b.executor.CompareAndSwap(ref, nil)
	}
}

// Interrupt performs the interrupt actions: set the cancellation flag and,
// if an executor is registered, queue one shutdown event for the watcher.
// It neither allocates nor blocks.
func (b *Bridge) Interrupt() {
	b.interrupted.Store(true)
	if p := b.progress.Load(); p != nil {
		p.Cancel()
	}
	if b.executor.Load() != nil {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
}

// Interrupted reports whether an interrupt has been received.
func (b *Bridge) Interrupted() bool {
	return b.interrupted.Load()
}

// Install subscribes to the given signals (os.Interrupt when none are given)
// and starts the watcher that delivers shutdown events.
func (b *Bridge) Install(sig ...os.Signal) {
	if len(sig) == 0 {
		sig = []os.Signal{os.Interrupt}
	}
	signal.Notify(b.signals, sig...)

	b.wg.Add(1)
	go b.watch()
}

func (b *Bridge) watch() {
	defer b.wg.Done()
	for {
		select {
		case s := <-b.signals:
			b.Interrupt()
			b.logger.Info("Interrupt received, cancelling", zap.String("signal", s.String()))
		case <-b.notify:
			if ref := b.executor.Load(); ref != nil {
				ref.DeliverShutdown()
				b.logger.Debug("Shutdown delivered to executor")
			}
		case <-b.done:
			return
		}
	}
}

// Stop unsubscribes from signals and waits for the watcher to exit.
func (b *Bridge) Stop() {
	b.stop.Do(func() {
		signal.Stop(b.signals)
		close(b.done)
		b.wg.Wait()
	})
}
