package metrics

import (
	"runtime"
	"sync"
	"time"
)

// resourceSampler runs the two fixed-interval background tasks that keep
// saturation visible during idle periods: a scheduler-lag probe and a
// process memory sample. Both run independently of request volume.
type resourceSampler struct {
	registry *Registry
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func newResourceSampler(registry *Registry, interval time.Duration) *resourceSampler {
	return &resourceSampler{
		registry: registry,
		interval: interval,
	}
}

// start launches both sampling loops. Starting twice is a no-op.
func (s *resourceSampler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.lagLoop(s.stopCh)
	go s.memoryLoop(s.stopCh)
}

// stop terminates the loops and waits for them. Stopping twice is a no-op.
func (s *resourceSampler) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// lagLoop measures how far behind schedule a fixed-interval timer fires.
// The excess over the nominal interval approximates scheduler lag: a loaded
// or GC-stalled process delays timer delivery.
func (s *resourceSampler) lagLoop(stopCh <-chan struct{}) {
	defer s.wg.Done()
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		scheduled := time.Now().Add(s.interval)
		timer.Reset(s.interval)
		select {
		case <-stopCh:
			return
		case fired := <-timer.C:
			lag := fired.Sub(scheduled)
			if lag < 0 {
				lag = 0
			}
			s.registry.schedulerLag.Observe(lag.Seconds())
		}
	}
}

// memoryLoop samples process memory and goroutine counts.
func (s *resourceSampler) memoryLoop(stopCh <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// take an initial sample so gauges are populated before the first tick
	s.sampleMemory()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.sampleMemory()
		}
	}
}

func (s *resourceSampler) sampleMemory() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	s.registry.heapAllocBytes.Set(float64(stats.HeapAlloc))
	s.registry.goroutines.Set(float64(runtime.NumGoroutine()))
}
