package tuner

import (
	"math"
)

// DefaultL2Threshold is the verification tolerance: the maximum summed
// absolute element-wise difference accepted as a match.
const DefaultL2Threshold = 1e-4

// verifyOutput downloads every output buffer and compares it to the
// reference snapshot. Returns StatusOk when every buffer matches,
// StatusMismatch otherwise. With no reference configured, verification is
// skipped and the candidate passes.
func (t *Tuner) verifyOutput() (Status, error) {
	if len(t.snapshots) == 0 {
		return StatusOk, nil
	}
	for i, out := range t.outputs {
		candidate, err := download(out)
		if err != nil {
			return StatusMismatch, err
		}
		norm := l2Norm(t.snapshots[i], candidate)
		if math.IsNaN(norm) || norm > t.l2Threshold {
			t.logMismatch(out.index, norm)
			return StatusMismatch, nil
		}
	}
	return StatusOk, nil
}

// l2Norm sums the absolute element-wise differences between a reference
// snapshot and a candidate download, widened to float64. Complex types
// contribute |dRe| + |dIm| per element.
func l2Norm(ref, cand snapshot) float64 {
	var norm float64
	switch ref.elemType {
	case ElemI32:
		for i := range ref.i32 {
			norm += math.Abs(float64(ref.i32[i]) - float64(cand.i32[i]))
		}
	case ElemU64:
		for i := range ref.u64 {
			norm += math.Abs(float64(ref.u64[i]) - float64(cand.u64[i]))
		}
	case ElemF32:
		for i := range ref.f32 {
			norm += math.Abs(float64(ref.f32[i]) - float64(cand.f32[i]))
		}
	case ElemF64:
		for i := range ref.f64 {
			norm += math.Abs(ref.f64[i] - cand.f64[i])
		}
	case ElemCF32:
		for i := range ref.cf32 {
			norm += math.Abs(float64(real(ref.cf32[i])) - float64(real(cand.cf32[i])))
			norm += math.Abs(float64(imag(ref.cf32[i])) - float64(imag(cand.cf32[i])))
		}
	case ElemCF64:
		for i := range ref.cf64 {
			norm += math.Abs(real(ref.cf64[i]) - real(cand.cf64[i]))
			norm += math.Abs(imag(ref.cf64[i]) - imag(cand.cf64[i]))
		}
	}
	return norm
}
