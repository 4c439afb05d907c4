/*
scheduler.go - Periodic report delivery

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Builds a report, renders every configured format, and hands each file
    to the sink
  - Logs the pending count so the recipient knows whether action is needed

USAGE:
  scheduler := report.NewScheduler(svc, report.DirSink{Dir: "./reports"}, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/vacation-planner/leave"
)

// Exporter produces the report snapshot.
type Exporter interface {
	ExportReport(ctx context.Context) (*leave.Report, error)
}

// Recorder counts scheduler runs by result.
type Recorder interface {
	ReportRun(result string)
}

type nopRecorder struct{}

func (nopRecorder) ReportRun(string) {}

// Scheduler delivers reports on an interval.
type Scheduler struct {
	Exporter Exporter
	Sink     Sink
	Formats  []Format
	Interval time.Duration
	Enabled  bool
	Metrics  Recorder
	// RunOnStart delivers one report as soon as Start is called.
	RunOnStart bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
	last   time.Time
}

// NewScheduler creates a weekly scheduler for csv and xlsx.
func NewScheduler(exporter Exporter, sink Sink, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Exporter: exporter,
		Sink:     sink,
		Formats:  []Format{FormatCSV, FormatXLSX},
		Interval: 7 * 24 * time.Hour,
		Enabled:  true,
		Metrics:  nopRecorder{},
		logger:   logger.Named("report"),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for a running delivery to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	if s.RunOnStart {
		s.deliver()
	}
	for {
		select {
		case <-ticker.C:
			s.deliver()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) deliver() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.logger.Error("report delivery failed", zap.Error(err))
	}
}

// RunNow builds and delivers one report immediately.
func (s *Scheduler) RunNow(ctx context.Context) (*leave.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	rep, err := s.Exporter.ExportReport(ctx)
	if err != nil {
		s.Metrics.ReportRun("failed")
		return nil, fmt.Errorf("export report: %w", err)
	}

	for _, f := range s.Formats {
		data, err := RenderBytes(f, rep)
		if err != nil {
			s.Metrics.ReportRun("failed")
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		name := f.FileName(rep.GeneratedAt)
		if err := s.Sink.Deliver(ctx, name, data); err != nil {
			s.Metrics.ReportRun("failed")
			return nil, fmt.Errorf("deliver %s: %w", name, err)
		}
	}
	s.last = rep.GeneratedAt
	s.Metrics.ReportRun("delivered")

	fields := []zap.Field{
		zap.Int("requests", len(rep.Rows)),
		zap.Int("pending", rep.Pending),
		zap.String("summary", rep.Summary()),
	}
	if rep.Pending > 0 {
		s.logger.Warn("report delivered", fields...)
	} else {
		s.logger.Info("report delivered", fields...)
	}
	return rep, nil
}

// LastRun returns the generation time of the last delivered report.
func (s *Scheduler) LastRun() time.Time {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.last
}

// NextRunTime returns when the next scheduled delivery will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return time.Now().Add(s.Interval)
}
