// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// CashFlow is a dated payment from the investor's point of view:
// negative when money is paid in, positive when money comes out.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// ConvertRate rescales a rate of return from one compounding period to
// another, e.g. from a 30 day window to a year.
func ConvertRate(irr float64, reference time.Duration, target time.Duration) float64 {
	d := reference.Seconds() / target.Seconds()
	return math.Exp(math.Log(1.0+irr)/d) - 1.0
}

// InternalRateOfReturn solves for the rate that discounts the cash
// flows to zero over the given compounding period. Returns false when
// there are no flows or Newton's method fails to converge.
func InternalRateOfReturn(flows []CashFlow, period time.Duration) (float64, bool) {
	if len(flows) == 0 {
		return 0, false
	}

	beginning := flows[0].Date
	for _, cf := range flows[1:] {
		if cf.Date.Before(beginning) {
			beginning = cf.Date
		}
	}

	secondsPerInterval := period.Seconds()
	type scaled struct {
		t float64
		y float64
	}
	ts := make([]scaled, 0, len(flows))
	for _, cf := range flows {
		ts = append(ts, scaled{
			t: cf.Date.Sub(beginning).Seconds() / secondsPerInterval,
			y: cf.Amount,
		})
	}

	f := func(x float64) float64 {
		acc := 0.0
		for _, s := range ts {
			acc += s.y * math.Pow(1.0+x, -s.t)
		}
		return acc
	}
	df := func(x float64) float64 {
		acc := 0.0
		for _, s := range ts {
			acc -= s.t * s.y * math.Pow(1.0+x, -s.t-1.0)
		}
		return acc
	}

	return newton(f, df, 0.1, 25, 1e-2, 1e-6, -0.999999999, 1000.0)
}

// newton iterates x -= f(x)/f'(x), projecting the iterate back to
// projectLB (the rate cannot fall below a total loss) and aborting once
// it crosses divergenceUB.
func newton(f, df func(float64) float64, x0 float64, maxIter int, epsVal, epsStep, projectLB, divergenceUB float64) (float64, bool) {
	n := 0
	x := x0
	fx := 0.0
	for {
		if n >= maxIter {
			log.Warn().Int("Iterations", n).Float64("X", x).Float64("FX", fx).
				Msg("newton unsuccessful: reached maximum iteration count")
			return 0, false
		}

		fx = f(x)
		if math.Abs(fx) < epsVal {
			break
		}

		dfx := df(x)
		if dfx == 0.0 {
			log.Warn().Int("Iterations", n).Float64("X", x).Float64("FX", fx).
				Msg("newton unsuccessful: reached critical point")
			return 0, false
		}

		step := fx / dfx
		x -= step

		if x < projectLB {
			log.Debug().Int("Iterations", n).Float64("X", x).Msg("projecting iterate to lower bound")
			x = projectLB
		} else if x >= divergenceUB {
			log.Warn().Int("Iterations", n).Float64("X", x).Float64("FX", fx).
				Msg("newton unsuccessful: reached upper bound")
			return 0, false
		}

		if math.Abs(step) < epsStep {
			break
		}

		n++
	}

	return x, true
}
