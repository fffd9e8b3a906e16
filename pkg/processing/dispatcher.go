package processing

import (
	"sync"
	"time"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/metrics"
	"github.com/open-teleop/station/pkg/protocol"
)

// Sink renders or forwards telemetry snapshots.
type Sink interface {
	Name() string
	Publish(snapshot protocol.Snapshot) error
}

// Dispatcher fans snapshots out to every registered sink from a bounded
// worker pool so the inbound path never waits on a display.
type Dispatcher struct {
	name        string
	workerCount int
	logger      customlog.Logger
	queue       chan protocol.Snapshot
	running     bool
	wg          sync.WaitGroup
	mu          sync.Mutex
	sinks       []Sink
	registry    *SinkRegistry
	queueSize   int
	metrics     *PoolMetrics
}

// PoolMetrics tracks metrics for a dispatcher
type PoolMetrics struct {
	ProcessedCount    int64
	ErrorCount        int64
	QueuedCount       int64
	DroppedCount      int64
	LastProcessedTime int64
	ProcessingTimeAvg int64 // in microseconds
	ProcessingTimeMax int64 // in microseconds
	mu                sync.Mutex
}

// NewDispatcher creates a stopped dispatcher. One worker keeps snapshots in
// arrival order for every sink.
func NewDispatcher(
	name string,
	workerCount int,
	queueSize int,
	logger customlog.Logger,
) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = customlog.Discard()
	}
	return &Dispatcher{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
		queue:       make(chan protocol.Snapshot, queueSize),
		registry:    NewSinkRegistry(logger),
		metrics:     &PoolMetrics{},
	}
}

// AddSink registers a sink. Sinks added while running receive the next
// snapshot onward.
func (d *Dispatcher) AddSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
	d.registry.Register(sink.Name())
	d.logger.Infof("%s dispatcher: added sink %s", d.name, sink.Name())
}

// Dispatch queues a snapshot. When the queue is full the oldest queued
// snapshot is discarded so sinks always converge on the latest one.
func (d *Dispatcher) Dispatch(snapshot protocol.Snapshot) {
	// Held across the enqueue so Stop cannot close the queue underneath.
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		d.logger.Debugf("%s dispatcher not running, discarding snapshot", d.name)
		return
	}

	d.metrics.mu.Lock()
	d.metrics.QueuedCount++
	d.metrics.mu.Unlock()

	for {
		select {
		case d.queue <- snapshot:
			return
		default:
		}
		select {
		case <-d.queue:
			d.metrics.mu.Lock()
			d.metrics.DroppedCount++
			d.metrics.mu.Unlock()
			d.logger.Debugf("%s dispatcher queue is full, dropped oldest snapshot", d.name)
		default:
		}
	}
}

// Start starts the dispatcher workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	d.running = true
	d.logger.Infof("Starting %s dispatcher with %d workers", d.name, d.workerCount)

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop drains the queue and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		return
	}

	d.running = false
	d.mu.Unlock() // Unlock before closing channel to avoid deadlock

	close(d.queue)

	d.logger.Infof("Stopping %s dispatcher", d.name)
	d.wg.Wait()
	d.logger.Infof("%s dispatcher stopped", d.name)

	d.logMetrics()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debugf("%s dispatcher worker %d started", d.name, id)

	for snapshot := range d.queue {
		d.mu.Lock()
		sinks := append([]Sink(nil), d.sinks...)
		d.mu.Unlock()

		startTime := time.Now()
		failed := false
		for _, sink := range sinks {
			err := sink.Publish(snapshot)
			d.registry.Record(sink.Name(), err, time.Now().UnixNano())
			metrics.RecordSinkPublish(sink.Name(), err == nil)
			if err != nil {
				failed = true
				d.logger.Warnf("%s dispatcher: sink %s failed: %v", d.name, sink.Name(), err)
			}
		}
		processingTime := time.Since(startTime).Microseconds()

		d.metrics.mu.Lock()
		d.metrics.ProcessedCount++
		d.metrics.LastProcessedTime = time.Now().UnixNano()
		if d.metrics.ProcessingTimeAvg == 0 {
			d.metrics.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			d.metrics.ProcessingTimeAvg = (d.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > d.metrics.ProcessingTimeMax {
			d.metrics.ProcessingTimeMax = processingTime
		}
		if failed {
			d.metrics.ErrorCount++
		}
		d.metrics.mu.Unlock()
	}

	d.logger.Debugf("%s dispatcher worker %d stopped", d.name, id)
}

// GetMetrics returns a copy of the current metrics
func (d *Dispatcher) GetMetrics() PoolMetrics {
	d.metrics.mu.Lock()
	defer d.metrics.mu.Unlock()

	return PoolMetrics{
		ProcessedCount:    d.metrics.ProcessedCount,
		ErrorCount:        d.metrics.ErrorCount,
		QueuedCount:       d.metrics.QueuedCount,
		DroppedCount:      d.metrics.DroppedCount,
		LastProcessedTime: d.metrics.LastProcessedTime,
		ProcessingTimeAvg: d.metrics.ProcessingTimeAvg,
		ProcessingTimeMax: d.metrics.ProcessingTimeMax,
	}
}

// Registry exposes per sink statistics.
func (d *Dispatcher) Registry() *SinkRegistry {
	return d.registry
}

func (d *Dispatcher) logMetrics() {
	m := d.GetMetrics()

	d.logger.Infof("%s dispatcher metrics: processed=%d, dropped=%d, errors=%d, avg_time=%dµs, max_time=%dµs",
		d.name, m.ProcessedCount, m.DroppedCount, m.ErrorCount,
		m.ProcessingTimeAvg, m.ProcessingTimeMax)
}

// GetName returns the dispatcher name
func (d *Dispatcher) GetName() string {
	return d.name
}

// GetQueueLength returns the current length of the snapshot queue
func (d *Dispatcher) GetQueueLength() int {
	return len(d.queue)
}

// GetQueueCapacity returns the capacity of the snapshot queue
func (d *Dispatcher) GetQueueCapacity() int {
	return d.queueSize
}
