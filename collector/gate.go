package collector

import "context"

// gate is the admission gate: a channel of slot permits. The slot number
// doubles as the worker ID, unique among concurrently running workers.
type gate struct {
	slots chan int
}

func newGate(n int) *gate {
	g := &gate{slots: make(chan int, n)}
	for i := 0; i < n; i++ {
		g.slots <- i
	}
	return g
}

// acquire blocks until a slot is free or ctx is done.
func (g *gate) acquire(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	select {
	case slot := <-g.slots:
		// select picks at random when both are ready; an interrupt wins.
		if err := ctx.Err(); err != nil {
			g.slots <- slot
			return 0, err
		}
		return slot, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (g *gate) release(slot int) {
	g.slots <- slot
}

// available returns the number of free slots.
func (g *gate) available() int {
	return len(g.slots)
}
