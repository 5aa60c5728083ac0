package denoise

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"nica/internal/dsp"
	"nica/internal/services"
)

// Remover removes the part of a signal explained by a noise reference.
type Remover interface {
	Remove(signal, noise []float64, fs float64) ([]float64, error)
}

// TF is the block-wise transfer-function model.
type TF struct {
	BlockSeconds float64
	MinOrder     int
	MaxOrder     int
}

// NewTF returns the model with 240 s blocks and orders 5..15.
func NewTF() TF {
	return TF{BlockSeconds: 240, MinOrder: 5, MaxOrder: 15}
}

// BlockModel is the noise model fitted to one block.
type BlockModel struct {
	Onset  int
	Length int
	Order  int
	Coeffs []float64
	// AIC holds N*ln(residual) + 2(m+1) for every order m tried.
	AIC []float64
}

// Remove implements Remover.
func (tf TF) Remove(signal, noise []float64, fs float64) ([]float64, error) {
	out, _, err := tf.Fit(signal, noise, fs)
	return out, err
}

// Fit returns the corrected signal together with the per-block models. The
// noise reference must be at least as long as the signal.
func (tf TF) Fit(signal, noise []float64, fs float64) ([]float64, []BlockModel, error) {
	mmax := tf.MaxOrder
	if tf.MinOrder < 1 || mmax < tf.MinOrder {
		return nil, nil, services.Wrap(services.ErrConfiguration, "transfer function", "fit",
			fmt.Sprintf("invalid order range %d..%d", tf.MinOrder, mmax), nil)
	}
	n := len(signal)
	if len(noise) < n {
		return nil, nil, services.Wrap(services.ErrValidation, "transfer function", "fit",
			fmt.Sprintf("noise reference has %d samples, signal %d", len(noise), n), nil)
	}
	if n < 2*mmax+1 {
		return nil, nil, services.Wrap(services.ErrNumerical, "transfer function", "fit",
			fmt.Sprintf("signal of %d samples is shorter than %d", n, 2*mmax+1), nil)
	}

	corr := make([]float64, n)
	var models []BlockModel
	for _, b := range tf.blocks(n, fs) {
		var noiseE []float64
		if b.onset == 0 {
			noiseE = make([]float64, 0, mmax+b.end)
			for i := 0; i < mmax; i++ {
				noiseE = append(noiseE, noise[0])
			}
			noiseE = append(noiseE, noise[:b.end]...)
		} else {
			noiseE = noise[b.onset-mmax : b.end]
		}
		part, model, err := tf.fitBlock(noiseE, signal[b.onset:b.end])
		if err != nil {
			return nil, nil, services.Wrap(services.ErrNumerical, "transfer function", fmt.Sprintf("block at sample %d", b.onset), "noise model failed", err)
		}
		model.Onset = b.onset
		copy(corr[b.onset:], part)
		models = append(models, model)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = signal[i] - corr[i]
	}
	return out, models, nil
}

type block struct{ onset, end int }

// blocks splits n samples into blocks of BlockSeconds; a trailing block too
// short to estimate covariances is merged into its predecessor.
func (tf TF) blocks(n int, fs float64) []block {
	seq := max(1, int(math.Round(tf.BlockSeconds*fs)))
	var out []block
	for onset := 0; onset < n; onset += seq {
		out = append(out, block{onset: onset, end: min(onset+seq, n)})
	}
	if k := len(out); k > 1 && out[k-1].end-out[k-1].onset < 2*tf.MaxOrder+1 {
		out[k-2].end = out[k-1].end
		out = out[:k-1]
	}
	return out
}

func (tf TF) fitBlock(noiseE, signal []float64) ([]float64, BlockModel, error) {
	mmax := tf.MaxOrder
	noise := noiseE[mmax:]
	gyy := xcov(noise, noise, mmax)
	gxy := xcov(signal, noise, mmax)
	gxx0 := xcov(signal, signal, 0)[0]
	nf := float64(len(noise))

	model := BlockModel{Length: len(signal)}
	best := math.Inf(1)
	for m := tf.MinOrder; m <= mmax; m++ {
		g := toeplitz(gyy[mmax : mmax+m+1])
		rhs := mat.NewVecDense(m+1, append([]float64(nil), gxy[mmax:mmax+m+1]...))
		var gu mat.VecDense
		if err := gu.SolveVec(g, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return nil, model, fmt.Errorf("covariance system of order %d is singular", m)
			}
		}
		snn := gxx0 - mat.Dot(&gu, rhs)
		aic := math.Inf(-1)
		if snn > 0 {
			aic = nf*math.Log(snn) + 2*float64(m+1)
		}
		model.AIC = append(model.AIC, aic)
		if aic < best || model.Coeffs == nil {
			best = aic
			model.Order = m
			model.Coeffs = append([]float64(nil), gu.RawVector().Data...)
		}
	}

	s := dsp.FIRFilter(model.Coeffs, noiseE)
	return s[mmax:], model, nil
}

// xcov returns the covariance of a against b at lags -maxLag..maxLag,
// c[l] = sum a[n+l] b[n] / len(a) with both means removed.
func xcov(a, b []float64, maxLag int) []float64 {
	ma, mb := meanOf(a), meanOf(b)
	out := make([]float64, 2*maxLag+1)
	n := len(a)
	for lag := -maxLag; lag <= maxLag; lag++ {
		var acc float64
		for i := max(0, -lag); i < len(b) && i+lag < n; i++ {
			acc += (a[i+lag] - ma) * (b[i] - mb)
		}
		out[lag+maxLag] = acc / float64(n)
	}
	return out
}

func toeplitz(col []float64) *mat.Dense {
	k := len(col)
	g := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			d := i - j
			if d < 0 {
				d = -d
			}
			g.Set(i, j, col[d])
		}
	}
	return g
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
