// Package factors implements the recursive beta estimator and the
// multi-layer factor decomposition that reduces an instrument's returns
// to an idiosyncratic residual series.
package factors

// Default noise parameters for the beta filter. Process noise is kept
// small so beta drifts slowly; observation noise absorbs residual
// variance.
const (
	DefaultProcessNoise     = 0.01
	DefaultObservationNoise = 0.1
)

// KalmanBeta estimates a time-varying beta of the instrument series on
// the factor series with a scalar Kalman filter. The state is the beta
// itself under a random-walk transition.
//
// Returns a series the same length as the inputs. Mismatched inputs or
// fewer than two observations yield an empty slice. With r > 0 the
// innovation covariance is strictly positive, so the update never
// divides by zero; a zero factor observation leaves beta at its prior
// value.
func KalmanBeta(factor, instrument []float64, q, r float64) []float64 {
	if len(factor) != len(instrument) || len(factor) < 2 {
		return nil
	}

	n := len(factor)
	betas := make([]float64, n)

	x := 1.0 // initial beta
	p := 1.0 // initial covariance

	for t := 0; t < n; t++ {
		// Prediction under random walk.
		xPred := x
		pPred := p + q

		// Observation model: instrument = beta * factor + noise.
		z := instrument[t]
		h := factor[t]

		innovation := z - h*xPred
		s := h*pPred*h + r
		k := pPred * h / s

		x = xPred + k*innovation
		p = (1 - k*h) * pPred

		betas[t] = x
	}

	return betas
}

// KalmanBetaDefault runs KalmanBeta with the standard noise parameters.
func KalmanBetaDefault(factor, instrument []float64) []float64 {
	return KalmanBeta(factor, instrument, DefaultProcessNoise, DefaultObservationNoise)
}
