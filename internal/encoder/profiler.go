package encoder

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const profileReportInterval = time.Second

// One reporting window of per-stage latency samples, all in milliseconds.
type profileWindow struct {
	feederBatchMs        []float64
	feederQueueMs        []float64
	stdinIOMs            []float64
	stdoutWaitMs         []float64
	outputQueueMs        []float64
	outputBackpressureMs []float64
}

func (w *profileWindow) empty() bool {
	return len(w.feederBatchMs) == 0 &&
		len(w.feederQueueMs) == 0 &&
		len(w.stdinIOMs) == 0 &&
		len(w.stdoutWaitMs) == 0 &&
		len(w.outputQueueMs) == 0 &&
		len(w.outputBackpressureMs) == 0
}

// Best-effort latency statistics shared between the hot-path workers and
// a low-frequency reporter.
//
// The workers record with TryLock and silently drop the sample on
// contention; only the reporter takes a blocking lock. The hot path must
// never wait on this.
type latencyProfiler struct {
	mu     sync.Mutex
	window profileWindow
}

func newLatencyProfiler() *latencyProfiler {
	return &latencyProfiler{}
}

func (p *latencyProfiler) recordFeeder(batchMs, queueMs, stdinIOMs float64) {
	if !p.mu.TryLock() {
		return
	}
	p.window.feederBatchMs = append(p.window.feederBatchMs, batchMs)
	p.window.feederQueueMs = append(p.window.feederQueueMs, queueMs)
	p.window.stdinIOMs = append(p.window.stdinIOMs, stdinIOMs)
	p.mu.Unlock()
}

func (p *latencyProfiler) recordReader(stdoutWaitMs, outputQueueMs, backpressureMs float64) {
	if !p.mu.TryLock() {
		return
	}
	p.window.stdoutWaitMs = append(p.window.stdoutWaitMs, stdoutWaitMs)
	p.window.outputQueueMs = append(p.window.outputQueueMs, outputQueueMs)
	p.window.outputBackpressureMs = append(p.window.outputBackpressureMs, backpressureMs)
	p.mu.Unlock()
}

// Take the current window, leaving an empty one behind.
func (p *latencyProfiler) snapshot() (profileWindow, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window.empty() {
		return profileWindow{}, false
	}
	window := p.window
	p.window = profileWindow{}
	return window, true
}

// Periodically drain the window and log summaries until stop closes,
// then drain one final time so shutdown does not lose the last second.
func (p *latencyProfiler) runReporter(stop <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(profileReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.logSnapshot(logger)
		case <-stop:
			p.logSnapshot(logger)
			return
		}
	}
}

func (p *latencyProfiler) logSnapshot(logger *slog.Logger) {
	window, ok := p.snapshot()
	if !ok {
		return
	}

	metrics := []struct {
		name   string
		values []float64
	}{
		{"feeder.batch_ms", window.feederBatchMs},
		{"feeder.queue_delay_ms", window.feederQueueMs},
		{"feeder.stdin_io_ms", window.stdinIOMs},
		{"reader.stdout_wait_ms", window.stdoutWaitMs},
		{"reader.output_queue_delay_ms", window.outputQueueMs},
		{"reader.output_backpressure_ms", window.outputBackpressureMs},
	}

	for _, metric := range metrics {
		summary, ok := summarizeMs(metric.values)
		if !ok {
			continue
		}
		logger.Info("encoder latency",
			"metric", metric.name,
			"n", summary.count,
			"avgMs", summary.avgMs,
			"p50Ms", summary.p50Ms,
			"p95Ms", summary.p95Ms,
			"maxMs", summary.maxMs,
		)
	}
}

type metricSummary struct {
	count int
	avgMs float64
	p50Ms float64
	p95Ms float64
	maxMs float64
}

func summarizeMs(values []float64) (metricSummary, bool) {
	if len(values) == 0 {
		return metricSummary{}, false
	}

	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	count := len(values)

	return metricSummary{
		count: count,
		avgMs: sum / float64(count),
		p50Ms: values[(count-1)*50/100],
		p95Ms: values[(count-1)*95/100],
		maxMs: values[count-1],
	}, true
}
