// Package qstat accumulates running mean/variance of per-base error
// probabilities without retaining every sample, the Go equivalent of the
// original program's boost::accumulators VarMeanEstimator. A closed-form
// online accumulator is used here rather than gonum/stat's batch
// stat.MeanVariance, which requires the full sample slice in memory and so
// does not fit a genome-scale streaming pass (see DESIGN.md).
package qstat

import "math"

// Estimator is a Welford online accumulator of a float64 stream.
type Estimator struct {
	n    uint64
	mean float64
	m2   float64
}

// Add folds x into the running statistics.
func (e *Estimator) Add(x float64) {
	e.n++
	delta := x - e.mean
	e.mean += delta / float64(e.n)
	delta2 := x - e.mean
	e.m2 += delta * delta2
}

// N returns the number of samples folded in.
func (e *Estimator) N() uint64 { return e.n }

// Mean returns the running mean, or 0 if no samples were added.
func (e *Estimator) Mean() float64 { return e.mean }

// Variance returns the running population variance, or 0 if fewer than two
// samples were added.
func (e *Estimator) Variance() float64 {
	if e.n < 2 {
		return 0
	}
	return e.m2 / float64(e.n)
}

// QToErr converts a Phred quality score to a linear error probability,
// 10^(-q/10), matching the original program's qToErr. Valid for q in
// 0..59 (spec §7 OutOfRange); q beyond that range is a programming error.
func QToErr(q int) float64 {
	return math.Pow(10, -float64(q)/10.0)
}

// QScore converts a running error-probability estimator back into a Phred
// quality score, -10*log10(mean), as the original program's printQualities
// does for both the global and per-read-offset series.
func QScore(e *Estimator) float64 {
	if e.Mean() <= 0 {
		return 0
	}
	return -10.0 * math.Log10(e.Mean())
}

// QScoreBand returns the (low, high) Phred band one standard deviation
// around the mean, as printQualities plots for qlo/qhi.
func QScoreBand(e *Estimator) (lo, hi float64) {
	v := e.Variance()
	if v <= 0 || e.Mean() <= 0 {
		m := QScore(e)
		return m, m
	}
	spread := math.Sqrt(-10.0 * math.Log10(v))
	m := QScore(e)
	return m - spread, m + spread
}

// minErrRate floors the band's error rate so -10*log10 never sees 0 when
// the one-standard-deviation spread reaches below a single observation.
const minErrRate = 1e-6

// maxQScore is reported for a bin with observations but zero errors: the
// highest score possible, as the original's qqdata emission hardcodes it.
const maxQScore = 41

// Phred recalibrates an aggregate correct/incorrect observation count into
// a Phred quality score with a one-standard-deviation band, the same
// -10*log10(errorRate) transform QScore applies to a streamed Estimator,
// but computed directly from a binomial proportion (spec's qualityTally and
// per-read-offset correct/wrongMappings are already aggregate counts, not a
// retained sample stream, so there is nothing to feed an Estimator with).
// A bin with no correct observations scores 0; one with no errors scores
// maxQScore. lo is the band at the higher error rate (lower quality) and
// hi at the lower error rate (higher quality), matching printQualities'
// qlo/qhi.
func Phred(correct, incorrect uint64) (q, lo, hi float64) {
	total := correct + incorrect
	if total == 0 || correct == 0 {
		return 0, 0, 0
	}
	if incorrect == 0 {
		return maxQScore, maxQScore, maxQScore
	}
	p := float64(incorrect) / float64(total)
	stddev := math.Sqrt(p * (1 - p) / float64(total))

	toQ := func(errRate float64) float64 {
		if errRate < minErrRate {
			errRate = minErrRate
		}
		if errRate > 1 {
			errRate = 1
		}
		return -10.0 * math.Log10(errRate)
	}
	return toQ(p), toQ(p + stddev), toQ(p - stddev)
}
