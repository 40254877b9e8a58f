package interrupt

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeExecutor struct {
	shutdowns atomic.Int32
}

func (f *fakeExecutor) DeliverShutdown() {
	f.shutdowns.Add(1)
}

func TestInterruptWithoutExecutorOnlySetsFlag(t *testing.T) {
	b := New(nil)
	progress := solver.NewProgress()
	b.SetProgress(progress)

	b.Interrupt()

	assert.True(t, progress.Cancelled())
	assert.True(t, b.Interrupted())
	assert.Len(t, b.notify, 0)
}

func TestInterruptBeforeProgressIsAttached(t *testing.T) {
	b := New(nil)
	b.Interrupt()
	assert.True(t, b.Interrupted())
}

func TestSignalDeliversShutdownToRegisteredExecutor(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(nil)
	progress := solver.NewProgress()
	b.SetProgress(progress)
	b.Install()
	defer b.Stop()

	exec := &fakeExecutor{}
	unregister := b.Register(exec)
	defer unregister()

	b.signals <- os.Interrupt

	assert.Eventually(t, func() bool { return exec.shutdowns.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, progress.Cancelled())
}

func TestUnregisterIsScopedToItsExecutor(t *testing.T) {
	b := New(nil)
	first, second := &fakeExecutor{}, &fakeExecutor{}

	unregisterFirst := b.Register(first)
	b.Register(second)
	unregisterFirst()

	ref := b.executor.Load()
	if assert.NotNil(t, ref) {
		assert.Same(t, second, ref.Shutdowner)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(nil)
	b.Install()
	b.Stop()
	b.Stop()
}
