package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_perf_stats_cpu        = "perf-stats.cpu"
	report_perf_stats_instrument = "perf-stats.instrument"
)

// InstrumentPerfStats records process cpu, memory and goroutine gauges every 30 seconds
// until ctx is done.
func InstrumentPerfStats(ctx context.Context, tel API) {
	instrumentPerfStats(ctx, tel, otel.Meter("scrapebridge.perf_stats"))
}

// instrumentPerfStats reports a gauge that could not be created and records
// nothing in that case.
func instrumentPerfStats(ctx context.Context, tel API, meter metric.Meter) bool {
	cpuGauge, err := meter.Float64Gauge("cpu_usage")
	if err != nil {
		tel.ReportBroken(report_perf_stats_instrument, "cpu_usage", err)
		return false
	}
	memoryGauge, err := meter.Int64Gauge("allocated_mb")
	if err != nil {
		tel.ReportBroken(report_perf_stats_instrument, "allocated_mb", err)
		return false
	}
	goroutineGauge, err := meter.Int64Gauge("goroutine_count")
	if err != nil {
		tel.ReportBroken(report_perf_stats_instrument, "goroutine_count", err)
		return false
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.PercentWithContext(ctx, time.Second, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					tel.ReportWarning(report_perf_stats_cpu, err)
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}
