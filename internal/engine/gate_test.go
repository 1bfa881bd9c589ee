package engine_test

import (
	"sync/atomic"
	"testing"

	"github.com/cspack/cspack/internal/engine"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// blockingRun returns a run function that blocks each invocation until
// release is closed
func blockingRun() (run func(), runs *int32, started chan struct{}, release chan struct{}) {
	runs = new(int32)
	started = make(chan struct{}, 128)
	release = make(chan struct{})
	run = func() {
		atomic.AddInt32(runs, 1)
		started <- struct{}{}
		<-release
	}
	return run, runs, started, release
}

func TestRerunGate_SingleTrigger(t *testing.T) {
	run, runs, started, release := blockingRun()
	g := engine.NewRerunGate(run)

	g.Trigger()
	<-started
	assert.True(t, g.Running())

	close(release)
	g.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(runs))
	assert.False(t, g.Running())
}

func TestRerunGate_CoalescesTriggersDuringRun(t *testing.T) {
	run, runs, started, release := blockingRun()
	g := engine.NewRerunGate(run)

	g.Trigger()
	<-started
	for i := 0; i < 10; i++ {
		g.Trigger()
	}

	close(release)
	g.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(runs))
}

func TestRerunGate_TriggerAfterIdleStartsNewRun(t *testing.T) {
	var runs int32
	g := engine.NewRerunGate(func() { atomic.AddInt32(&runs, 1) })

	g.Trigger()
	g.Wait()
	g.Trigger()
	g.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestRerunGate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("batches during an in-flight run add at most one run", prop.ForAll(
		func(n int) bool {
			run, runs, started, release := blockingRun()
			g := engine.NewRerunGate(run)

			g.Trigger()
			<-started
			for i := 0; i < n; i++ {
				g.Trigger()
			}
			close(release)
			g.Wait()

			want := int32(1)
			if n > 0 {
				want = 2
			}
			return atomic.LoadInt32(runs) == want
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
