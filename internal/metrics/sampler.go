package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// processSampler periodically samples this node's own process RSS and
// CPU usage, the way the teacher's Server.collectMetrics does via
// gopsutil/v3/process.Process.MemoryInfo, trimmed down to the two
// gauges this node's /metrics endpoint exposes.
type processSampler struct {
	rss prometheus.Gauge
	cpu prometheus.Gauge

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newProcessSampler(rss, cpu prometheus.Gauge) *processSampler {
	return &processSampler{rss: rss, cpu: cpu, stopCh: make(chan struct{})}
}

func (s *processSampler) start(interval time.Duration) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sample(proc)
			}
		}
	}()
}

func (s *processSampler) sample(proc *process.Process) {
	if memInfo, err := proc.MemoryInfo(); err == nil {
		s.rss.Set(float64(memInfo.RSS))
	}
	if pct, err := proc.CPUPercent(); err == nil {
		s.cpu.Set(pct)
	}
}

func (s *processSampler) stop() {
	close(s.stopCh)
	s.wg.Wait()
}
