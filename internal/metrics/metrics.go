package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_verdicts_total",
		Help: "Validation verdicts reported per solution",
	}, []string{"verdict"})

	ConvolutionVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_convolution_verdicts_total",
		Help: "Convolution versus contraction cross-check verdicts per problem",
	}, []string{"verdict"})

	ElementsCompared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validation_elements_compared_total",
		Help: "Total number of result elements compared against the reference",
	})

	Mismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validation_mismatches_total",
		Help: "Total number of result elements that differed from the reference",
	})

	GuardViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_guard_violations_total",
		Help: "Guard elements found overwritten, by region",
	}, []string{"region"})

	GuardElementsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validation_guard_elements_checked_total",
		Help: "Guard and padding elements scanned for sentinel corruption",
	})

	ValidationStride = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "validation_stride",
		Help: "Sampling stride selected for the current problem",
	})

	StagingBufferBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "validation_staging_buffer_bytes",
		Help: "Capacity of the host staging buffer",
	})

	StagingBufferGrowths = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validation_staging_buffer_growths_total",
		Help: "Number of times the host staging buffer was reallocated",
	})

	ValidationDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "validation_duration_seconds",
		Help: "Duration of one solution validation pass",
	})

	DeviceTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_transfers_total",
		Help: "Memory transfers issued, by direction",
	}, []string{"kind"})

	DeviceTransferBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "device_transfer_bytes_total",
		Help: "Bytes moved by memory transfers",
	})

	GPUMemoryAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpu_memory_allocated_bytes",
		Help: "Current bytes allocated on the device",
	})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpu_kernel_duration_seconds",
		Help:    "Histogram of kernel execution times",
		Buckets: prometheus.DefBuckets,
	}, []string{"kernel"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Fatal validation errors, by operation and error type",
	}, []string{"operation", "error_type"})
)

// RecordVerdict counts one per-solution verdict string.
func RecordVerdict(verdict string) {
	ValidationVerdicts.WithLabelValues(verdict).Inc()
}

func RecordConvolutionVerdict(verdict string) {
	ConvolutionVerdicts.WithLabelValues(verdict).Inc()
}

// RecordComparison records the counters of one finished comparison pass.
func RecordComparison(compared, mismatches int, duration time.Duration) {
	ElementsCompared.Add(float64(compared))
	if mismatches > 0 {
		Mismatches.Add(float64(mismatches))
	}
	ValidationDuration.Observe(duration.Seconds())
}

// RecordGuardScan records guard elements checked and violations per region.
func RecordGuardScan(checked, before, inside, after int) {
	GuardElementsChecked.Add(float64(checked))
	if before > 0 {
		GuardViolations.WithLabelValues("before").Add(float64(before))
	}
	if inside > 0 {
		GuardViolations.WithLabelValues("inside").Add(float64(inside))
	}
	if after > 0 {
		GuardViolations.WithLabelValues("after").Add(float64(after))
	}
}

func RecordStride(stride int) {
	ValidationStride.Set(float64(stride))
}

func RecordStagingBuffer(capacity int, grew bool) {
	StagingBufferBytes.Set(float64(capacity))
	if grew {
		StagingBufferGrowths.Inc()
	}
}

func RecordTransfer(kind string, bytes int) {
	DeviceTransfers.WithLabelValues(kind).Inc()
	DeviceTransferBytes.Add(float64(bytes))
}

func RecordGPUMemory(bytes int64) {
	GPUMemoryAllocated.Set(float64(bytes))
}

func RecordKernelDuration(name string, duration time.Duration) {
	KernelDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}
