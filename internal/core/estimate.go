package core

import (
	"fmt"
	"math"
	"time"
)

// EstimatorConfig holds the transport heuristics. The numbers are tuning,
// not contract; all of them come from configuration.
type EstimatorConfig struct {
	CSVBytesPerRow  int
	XLSXBytesPerRow int

	SimpleRowCost  time.Duration
	MediumRowCost  time.Duration
	ComplexRowCost time.Duration

	// Row counts above which a file is at least medium / complex.
	MediumRows  int
	ComplexRows int

	PushSizeBytes int64
	PushRows      int
	PushDuration  time.Duration
}

// DefaultEstimatorConfig returns the stock thresholds.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		CSVBytesPerRow:  120,
		XLSXBytesPerRow: 45,
		SimpleRowCost:   2 * time.Millisecond,
		MediumRowCost:   5 * time.Millisecond,
		ComplexRowCost:  12 * time.Millisecond,
		MediumRows:      1000,
		ComplexRows:     20000,
		PushSizeBytes:   5 << 20,
		PushRows:        5000,
		PushDuration:    30 * time.Second,
	}
}

// Estimate is a pre-flight workload guess. It is advisory: the job
// supports polling and push whatever the recommendation.
type Estimate struct {
	FileSize            int64      `json:"fileSize"`
	Format              Format     `json:"format"`
	EstimatedRows       int        `json:"estimatedRows"`
	EstimatedDurationMs int64      `json:"estimatedDurationMs"`
	Complexity          Complexity `json:"complexity"`
	RecommendedMode     Mode       `json:"recommendedMode"`
	Reasons             []string   `json:"reasons,omitempty"`
}

// maxEstimatedRows caps the row guess so sizes near MaxInt64 stay
// representable.
const maxEstimatedRows = 1_000_000_000

// scaleDuration returns cost*n, saturating at the largest Duration.
func scaleDuration(cost time.Duration, n int) time.Duration {
	if n <= 0 || cost <= 0 {
		return 0
	}
	if cost > time.Duration(math.MaxInt64)/time.Duration(n) {
		return time.Duration(math.MaxInt64)
	}
	return cost * time.Duration(n)
}

// Estimator recommends polling or push for an upload.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator fills unset fields from DefaultEstimatorConfig.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	d := DefaultEstimatorConfig()
	if cfg.CSVBytesPerRow <= 0 {
		cfg.CSVBytesPerRow = d.CSVBytesPerRow
	}
	if cfg.XLSXBytesPerRow <= 0 {
		cfg.XLSXBytesPerRow = d.XLSXBytesPerRow
	}
	if cfg.SimpleRowCost <= 0 {
		cfg.SimpleRowCost = d.SimpleRowCost
	}
	if cfg.MediumRowCost <= 0 {
		cfg.MediumRowCost = d.MediumRowCost
	}
	if cfg.ComplexRowCost <= 0 {
		cfg.ComplexRowCost = d.ComplexRowCost
	}
	if cfg.MediumRows <= 0 {
		cfg.MediumRows = d.MediumRows
	}
	if cfg.ComplexRows <= 0 {
		cfg.ComplexRows = d.ComplexRows
	}
	if cfg.PushSizeBytes <= 0 {
		cfg.PushSizeBytes = d.PushSizeBytes
	}
	if cfg.PushRows <= 0 {
		cfg.PushRows = d.PushRows
	}
	if cfg.PushDuration <= 0 {
		cfg.PushDuration = d.PushDuration
	}
	return &Estimator{cfg: cfg}
}

// Estimate sizes an upload of fileSize bytes. base is the import type's
// own complexity; the row count can raise it.
func (e *Estimator) Estimate(fileSize int64, format Format, base Complexity) Estimate {
	perRow := e.cfg.CSVBytesPerRow
	if format == FormatXLSX {
		perRow = e.cfg.XLSXBytesPerRow
	}

	rows := 0
	if fileSize > 0 {
		rows = int(min(fileSize/int64(perRow), maxEstimatedRows))
		if rows == 0 {
			rows = 1
		}
	}

	complexity := maxComplexity(base, e.rowClass(rows))
	duration := scaleDuration(e.rowCost(complexity), rows)

	est := Estimate{
		FileSize:            fileSize,
		Format:              format,
		EstimatedRows:       rows,
		EstimatedDurationMs: duration.Milliseconds(),
		Complexity:          complexity,
		RecommendedMode:     ModePoll,
	}

	if fileSize > e.cfg.PushSizeBytes {
		est.Reasons = append(est.Reasons, fmt.Sprintf("file size %d bytes exceeds %d", fileSize, e.cfg.PushSizeBytes))
	}
	if rows > e.cfg.PushRows {
		est.Reasons = append(est.Reasons, fmt.Sprintf("estimated %d rows exceeds %d", rows, e.cfg.PushRows))
	}
	if duration > e.cfg.PushDuration {
		est.Reasons = append(est.Reasons, fmt.Sprintf("estimated duration %s exceeds %s", duration.Round(time.Second), e.cfg.PushDuration))
	}
	if complexity == ComplexityComplex {
		est.Reasons = append(est.Reasons, "import is complex")
	}
	if len(est.Reasons) > 0 {
		est.RecommendedMode = ModePush
	}
	return est
}

func (e *Estimator) rowClass(rows int) Complexity {
	switch {
	case rows > e.cfg.ComplexRows:
		return ComplexityComplex
	case rows > e.cfg.MediumRows:
		return ComplexityMedium
	default:
		return ComplexitySimple
	}
}

func (e *Estimator) rowCost(c Complexity) time.Duration {
	switch c {
	case ComplexityComplex:
		return e.cfg.ComplexRowCost
	case ComplexityMedium:
		return e.cfg.MediumRowCost
	default:
		return e.cfg.SimpleRowCost
	}
}

func complexityRank(c Complexity) int {
	switch c {
	case ComplexityComplex:
		return 2
	case ComplexityMedium:
		return 1
	default:
		return 0
	}
}

func maxComplexity(a, b Complexity) Complexity {
	if complexityRank(b) > complexityRank(a) {
		return b
	}
	if a == "" {
		return ComplexitySimple
	}
	return a
}

// ParseComplexity accepts "simple", "medium" or "complex".
func ParseComplexity(s string) (Complexity, bool) {
	switch c := Complexity(s); c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return c, true
	}
	return "", false
}
