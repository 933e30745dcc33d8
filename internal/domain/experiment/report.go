package experiment

import (
	"math"
	"sort"
)

// MetricStats summarizes one metric within a variant.
type MetricStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	// TStat and PValue compare this variant against the control and are
	// absent for the control itself. TStat is also absent when both samples
	// are constant but differ, where the statistic is unbounded and PValue is 0.
	TStat  *float64 `json:"tStat,omitempty"`
	PValue *float64 `json:"pValue,omitempty"`
}

// VariantReport aggregates assignments and outcomes of one variant.
type VariantReport struct {
	Variant     string                 `json:"variant"`
	Assignments int                    `json:"assignments"`
	Outcomes    int                    `json:"outcomes"`
	Metrics     map[string]MetricStats `json:"metrics"`
}

// Report is computed on read from the append-only outcome log.
type Report struct {
	ExperimentID string          `json:"experimentId"`
	Status       Status          `json:"status"`
	Control      string          `json:"control"`
	Variants     []VariantReport `json:"variants"`
}

// BuildReport aggregates outcomes per variant and compares each metric with
// the control using Welch's t-test under a normal approximation.
func BuildReport(e Experiment, assignments map[string]int, outcomes []Outcome) Report {
	samples := make(map[string]map[string][]float64, len(e.Variants))
	counts := make(map[string]int, len(e.Variants))
	for _, o := range outcomes {
		counts[o.Variant]++
		m := samples[o.Variant]
		if m == nil {
			m = make(map[string][]float64)
			samples[o.Variant] = m
		}
		for k, v := range o.Metrics {
			m[k] = append(m[k], v)
		}
	}

	control := e.Control().Name
	rep := Report{ExperimentID: e.ID, Status: e.Status, Control: control}
	for _, v := range e.Variants {
		vr := VariantReport{
			Variant:     v.Name,
			Assignments: assignments[v.Name],
			Outcomes:    counts[v.Name],
			Metrics:     make(map[string]MetricStats),
		}
		names := make([]string, 0, len(samples[v.Name]))
		for k := range samples[v.Name] {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, metric := range names {
			st := describe(samples[v.Name][metric])
			if v.Name != control {
				tStat, p := welch(samples[control][metric], samples[v.Name][metric])
				st.TStat, st.PValue = tStat, &p
			}
			vr.Metrics[metric] = st
		}
		rep.Variants = append(rep.Variants, vr)
	}
	return rep
}

func describe(xs []float64) MetricStats {
	st := MetricStats{Count: len(xs)}
	if len(xs) == 0 {
		return st
	}
	for _, x := range xs {
		st.Mean += x
	}
	st.Mean /= float64(len(xs))
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			ss += (x - st.Mean) * (x - st.Mean)
		}
		st.StdDev = math.Sqrt(ss / float64(len(xs)-1))
	}
	return st
}

// welch returns the t statistic of b versus a and a two-sided p-value from the
// normal approximation. Samples smaller than two yield (0, 1). Constant
// samples with different means yield (nil, 0).
func welch(a, b []float64) (t *float64, p float64) {
	zero := 0.0
	if len(a) < 2 || len(b) < 2 {
		return &zero, 1
	}
	sa, sb := describe(a), describe(b)
	se := math.Sqrt(sa.StdDev*sa.StdDev/float64(len(a)) + sb.StdDev*sb.StdDev/float64(len(b)))
	if se == 0 {
		if sa.Mean == sb.Mean {
			return &zero, 1
		}
		return nil, 0
	}
	v := (sb.Mean - sa.Mean) / se
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, 0
	}
	return &v, math.Erfc(math.Abs(v) / math.Sqrt2)
}
