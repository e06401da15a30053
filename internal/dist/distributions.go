package dist

import (
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// StatisticalDistributions provides unified access to the distribution
// functions used by the rate procedures. Tails are computed from the
// regularized incomplete gamma and beta functions directly so that small
// upper tails keep their relative precision.
type StatisticalDistributions struct{}

// NewDistributions creates a new distributions utility
func NewDistributions() *StatisticalDistributions {
	return &StatisticalDistributions{}
}

// NormalCDF computes cumulative distribution function for standard normal
func (sd *StatisticalDistributions) NormalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NormalSF computes the upper tail of the standard normal
func (sd *StatisticalDistributions) NormalSF(x float64) float64 {
	return distuv.UnitNormal.Survival(x)
}

// NormalQuantile computes quantile function for standard normal (inverse CDF)
func (sd *StatisticalDistributions) NormalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// NormalISF is the inverse of NormalSF.
func (sd *StatisticalDistributions) NormalISF(q float64) float64 {
	return -sd.NormalQuantile(q)
}

// PoissonPMF returns P(X = k) for X ~ Poisson(mu). A zero mean puts all mass
// at zero.
func (sd *StatisticalDistributions) PoissonPMF(k int, mu float64) float64 {
	if k < 0 {
		return 0
	}
	if mu <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	return distuv.Poisson{Lambda: mu}.Prob(float64(k))
}

// PoissonCDF returns P(X <= k).
func (sd *StatisticalDistributions) PoissonCDF(k int, mu float64) float64 {
	if k < 0 {
		return 0
	}
	if mu <= 0 {
		return 1
	}
	return mathext.GammaIncRegComp(float64(k)+1, mu)
}

// PoissonSF returns P(X > k).
func (sd *StatisticalDistributions) PoissonSF(k int, mu float64) float64 {
	if k < 0 {
		return 1
	}
	if mu <= 0 {
		return 0
	}
	return mathext.GammaIncReg(float64(k)+1, mu)
}

// PoissonISF returns the smallest k with P(X > k) <= q.
func (sd *StatisticalDistributions) PoissonISF(q float64, mu float64) int {
	if mu <= 0 || q >= 1 {
		return 0
	}
	// Start near the mean; the upper tail is monotone in k.
	k := int(math.Floor(mu))
	for k > 0 && sd.PoissonSF(k-1, mu) <= q {
		k--
	}
	for sd.PoissonSF(k, mu) > q {
		k++
	}
	return k
}

// BinomialPMF returns P(X = k) for X ~ Binomial(n, p).
func (sd *StatisticalDistributions) BinomialPMF(k, n int, p float64) float64 {
	if k < 0 || k > n {
		return 0
	}
	switch {
	case p <= 0:
		if k == 0 {
			return 1
		}
		return 0
	case p >= 1:
		if k == n {
			return 1
		}
		return 0
	}
	return distuv.Binomial{N: float64(n), P: p}.Prob(float64(k))
}

// BinomialCDF returns P(X <= k).
func (sd *StatisticalDistributions) BinomialCDF(k, n int, p float64) float64 {
	if k < 0 {
		return 0
	}
	if k >= n || p <= 0 {
		return 1
	}
	if p >= 1 {
		return 0
	}
	return mathext.RegIncBeta(float64(n-k), float64(k)+1, 1-p)
}

// BinomialSF returns P(X > k).
func (sd *StatisticalDistributions) BinomialSF(k, n int, p float64) float64 {
	if k < 0 {
		return 1
	}
	if k >= n || p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	return mathext.RegIncBeta(float64(k)+1, float64(n-k), p)
}

// GammaQuantile returns the p quantile of Gamma(shape, 1).
func (sd *StatisticalDistributions) GammaQuantile(p, shape float64) float64 {
	return mathext.GammaIncRegInv(shape, p)
}

// GammaISF returns x with P(X > x) = q for X ~ Gamma(shape, 1).
func (sd *StatisticalDistributions) GammaISF(q, shape float64) float64 {
	return mathext.GammaIncRegCompInv(shape, q)
}

// BetaQuantile returns the p quantile of Beta(a, b).
func (sd *StatisticalDistributions) BetaQuantile(p, a, b float64) float64 {
	return mathext.InvRegIncBeta(a, b, p)
}

// ChiSquareSF computes the upper tail of the chi-square distribution
func (sd *StatisticalDistributions) ChiSquareSF(x float64, degreesOfFreedom float64) float64 {
	if degreesOfFreedom <= 0 {
		return math.NaN()
	}
	return distuv.ChiSquared{K: degreesOfFreedom}.Survival(x)
}
