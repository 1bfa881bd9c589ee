package engine

import "sync"

// RerunGate serializes runs of a function. A trigger that arrives while a
// run is in flight sets a single pending flag, so any number of triggers
// during one run cause at most one follow-up run.
type RerunGate struct {
	run func()

	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup
}

// NewRerunGate creates a gate around run
func NewRerunGate(run func()) *RerunGate {
	return &RerunGate{run: run}
}

// Trigger requests a run. It never blocks.
func (g *RerunGate) Trigger() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		g.pending = true
		return
	}
	g.running = true
	g.wg.Add(1)
	go g.loop()
}

// Running reports whether a run is in flight
func (g *RerunGate) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Wait blocks until the current run and any pending rerun finish
func (g *RerunGate) Wait() {
	g.wg.Wait()
}

func (g *RerunGate) loop() {
	defer g.wg.Done()

	for {
		g.run()

		g.mu.Lock()
		if !g.pending {
			g.running = false
			g.mu.Unlock()
			return
		}
		g.pending = false
		g.mu.Unlock()
	}
}
