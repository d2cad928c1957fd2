// Package hammer runs a test body from many goroutines released at once, to
// surface races in engines and memory owners shared between calls.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer invokes a test concurrently in P goroutines N times per goroutine.
//
// Ex.
//
//	P, N := 8, 100
//	if testing.Short() {
//		P, N = 4, 10
//	}
//	hammer.NewHammer(t, P, N).Run(func(p, n int) {
//		ret, err := f.Call(ctx)
//		require.NoError(t, err)
//		...
//	}, nil)
//	if t.Failed() {
//		return
//	}
type Hammer interface {
	// Run invokes test in P goroutines, each looping N times. p is the index of
	// the goroutine and n the iteration within it.
	//
	// onRunning, when not nil, runs after all goroutines started and before any
	// of them calls test.
	Run(test func(p, n int), onRunning func())
}

// NewHammer returns a Hammer with P goroutines of N iterations each.
func NewHammer(t *testing.T, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t    *testing.T
	P, N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int), onRunning func()) {
	// Fewer procs than goroutines forces them to switch.
	if procs := h.P / 2; procs > 0 {
		defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(procs))
	}

	running := make(chan struct{})
	finished := make(chan struct{})
	var unblocked sync.WaitGroup
	unblocked.Add(1)

	for p := 0; p < h.P; p++ {
		p := p
		go func() {
			defer func() {
				// Panics in a goroutine would otherwise crash the test binary.
				if recovered := recover(); recovered != nil {
					h.t.Error(recovered)
				}
				finished <- struct{}{}
			}()
			running <- struct{}{}

			unblocked.Wait()
			for n := 0; n < h.N; n++ {
				test(p, n)
			}
		}()
	}

	for i := 0; i < h.P; i++ {
		<-running
	}
	if onRunning != nil {
		onRunning()
	}
	unblocked.Done()

	for i := 0; i < h.P; i++ {
		<-finished
	}
}
