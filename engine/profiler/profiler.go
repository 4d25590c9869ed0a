// Package profiler tracks frame rate, memory statistics and per-stage timings of the GI pipeline.
package profiler

import (
	"bytes"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("profiler")

// StageStats aggregates the recorded durations of one pipeline stage.
type StageStats struct {
	Name  string
	Calls int
	Total time.Duration
	Max   time.Duration
	Last  time.Duration
}

// Mean returns the average duration per call.
func (s StageStats) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Profiler tracks frame rate, memory statistics and stage timings.
// Outputs frame stats to the log at a configurable interval. Safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	frameCount     int
	totalFrames    int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	stages         map[string]*StageStats
	order          []string
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		stages:         make(map[string]*StageStats),
	}
}

// SetInterval changes how often Tick logs statistics.
func (p *Profiler) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateInterval = d
}

// Record adds one measured duration to a stage. Stages are reported in first-recorded order.
//
// Parameters:
//   - stage: the stage name
//   - d: the measured duration
func (p *Profiler) Record(stage string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stages[stage]
	if !ok {
		s = &StageStats{Name: stage}
		p.stages[stage] = s
		p.order = append(p.order, stage)
	}
	s.Calls++
	s.Total += d
	s.Last = d
	s.Max = max(s.Max, d)
}

// Time runs fn and records its duration under stage.
//
// Parameters:
//   - stage: the stage name
//   - fn: the work to measure
//
// Returns:
//   - error: the error returned by fn
func (p *Profiler) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.Record(stage, time.Since(start))
	return err
}

// Measure runs fn, which cannot fail, and records its duration under stage.
func (p *Profiler) Measure(stage string, fn func()) {
	start := time.Now()
	fn()
	p.Record(stage, time.Since(start))
}

// Stages returns a snapshot of every stage in first-recorded order.
func (p *Profiler) Stages() []StageStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StageStats, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.stages[name])
	}
	return out
}

// Frames returns the number of Tick calls since creation.
func (p *Profiler) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	p.totalFrames++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	logger.Infof("FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Report renders the stage statistics as a table, slowest mean first.
//
// Returns:
//   - string: the rendered table
func (p *Profiler) Report() string {
	stages := p.Stages()
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Mean() > stages[j].Mean()
	})

	var total time.Duration
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stage", "Calls", "Mean", "Max", "Last"})
	for _, s := range stages {
		total += s.Mean()
		table.Append([]string{
			s.Name,
			fmt.Sprintf("%d", s.Calls),
			s.Mean().String(),
			s.Max.String(),
			s.Last.String(),
		})
	}
	table.SetFooter([]string{"", "", "", "TOTAL", total.String()})
	table.Render()
	return buf.String()
}
