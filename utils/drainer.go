package utils

import "sync"

// Drainer is a join barrier: the owner of a set of spawned tasks calls
// Drain to wait for all of them. Resources the tasks share (sindex access
// handles, a write transaction) may only be released after Drain returns.
type Drainer struct {
	wg sync.WaitGroup
}

func (d *Drainer) Add(n int) {
	d.wg.Add(n)
}

func (d *Drainer) Done() {
	d.wg.Done()
}

// Drain blocks until every added task called Done. Cancellation is not
// checked here: tasks observe their own context and exit, so Drain
// terminates shortly after cancellation anyway, and returning early would
// let the caller free resources the tasks still reference.
func (d *Drainer) Drain() {
	d.wg.Wait()
}

// Go runs f as a tracked task.
func (d *Drainer) Go(f func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		f()
	}()
}
