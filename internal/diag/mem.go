// Package diag holds operator-facing diagnostics. The memory ballast exists
// to exercise host memory pressure on demand; it is allocated and touched so
// the pages are actually resident, not just reserved.
package diag

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

const mib = 1 << 20

// MaxBallastMB bounds a single ballast request so a typo cannot OOM the host.
const MaxBallastMB = 4096

// Ballast is a process-scoped block of resident memory under operator
// control.
type Ballast struct {
	mu    sync.Mutex
	block []byte
}

func NewBallast() *Ballast { return &Ballast{} }

// Set resizes the ballast to n MiB, replacing any previous block. n = 0 is
// equivalent to Clear.
func (b *Ballast) Set(n int) error {
	if n < 0 || n > MaxBallastMB {
		return fmt.Errorf("ballast size must be in [0,%d] MiB, got %d", MaxBallastMB, n)
	}
	if n == 0 {
		b.Clear()
		return nil
	}

	block := make([]byte, n*mib)
	// Touch one byte per page so the OS commits the memory.
	for i := 0; i < len(block); i += 4096 {
		block[i] = 1
	}

	b.mu.Lock()
	b.block = block
	b.mu.Unlock()
	return nil
}

// Clear drops the ballast and asks the runtime to hand memory back promptly.
func (b *Ballast) Clear() {
	b.mu.Lock()
	b.block = nil
	b.mu.Unlock()
	debug.FreeOSMemory()
}

// CurrentMB reports the held ballast size in MiB.
func (b *Ballast) CurrentMB() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.block) / mib
}

// MemSnapshot is a human-oriented summary of runtime memory use.
type MemSnapshot struct {
	HeapAllocMB uint64
	HeapSysMB   uint64
	NumGC       uint32
	Goroutines  int
	BallastMB   int
}

func (b *Ballast) Snapshot() MemSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemSnapshot{
		HeapAllocMB: ms.HeapAlloc / mib,
		HeapSysMB:   ms.HeapSys / mib,
		NumGC:       ms.NumGC,
		Goroutines:  runtime.NumGoroutine(),
		BallastMB:   b.CurrentMB(),
	}
}
