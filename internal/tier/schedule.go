/*

TVL-driven tier schedule shared by the exchange fee path and the farm reward path.
Both systems key off the same metric (pool TVL in base-currency terms), so a single
ordered step function serves both: a band selects the swap fee rate for the pool and
the reward multiplier for the farm.

*/

package tier

import "math"

const speedOfLight = 299792458.0 // m/s

// Band is one step of the schedule. Bands are ordered by MinTVL descending; the first
// band whose MinTVL the pool's TVL reaches is in effect.
type Band struct {
	Name             string  `json:"name"`
	MinTVL           float64 `json:"min_tvl"`
	FeeRate          float64 `json:"fee_rate"`          // swap fee fraction, e.g. 0.003
	RewardMultiplier float64 `json:"reward_multiplier"` // farm reward multiplier
	WavelengthNM     float64 `json:"wavelength_nm"`     // settlement wavelength tag
}

// Schedule is an ordered set of bands, highest MinTVL first.
type Schedule struct {
	bands []Band
}

// Fee rates are bounded to [0.1%, 0.5%]: deeper pools trade cheaper, shallow pools pay
// the cap. Reward multipliers run the other way, rewarding TVL concentration.
const (
	MinFeeRate = 0.001
	MaxFeeRate = 0.005
)

// DefaultSchedule returns the five-band production schedule.
func DefaultSchedule() Schedule {
	return Schedule{bands: []Band{
		{Name: "gamma", MinTVL: 100000, FeeRate: 0.001, RewardMultiplier: 5.0, WavelengthNM: 0.01},
		{Name: "xray", MinTVL: 50000, FeeRate: 0.002, RewardMultiplier: 3.0, WavelengthNM: 1.0},
		{Name: "uv", MinTVL: 10000, FeeRate: 0.003, RewardMultiplier: 2.0, WavelengthNM: 300},
		{Name: "visible", MinTVL: 1000, FeeRate: 0.004, RewardMultiplier: 1.0, WavelengthNM: 550},
		{Name: "infrared", MinTVL: 0, FeeRate: 0.005, RewardMultiplier: 0.5, WavelengthNM: 1000},
	}}
}

// ForTVL returns the band in effect for the given TVL. TVL below every threshold maps
// to the last (lowest) band.
func (s Schedule) ForTVL(tvl float64) Band {
	for _, b := range s.bands {
		if tvl >= b.MinTVL {
			return b
		}
	}
	return s.bands[len(s.bands)-1]
}

// FeeRate returns the clamped swap fee rate for the given TVL.
func (s Schedule) FeeRate(tvl float64) float64 {
	rate := s.ForTVL(tvl).FeeRate
	if rate < MinFeeRate {
		return MinFeeRate
	}
	if rate > MaxFeeRate {
		return MaxFeeRate
	}
	return rate
}

// Bands returns a copy of the schedule's bands, highest tier first.
func (s Schedule) Bands() []Band {
	out := make([]Band, len(s.bands))
	copy(out, s.bands)
	return out
}

// APY estimates the annualized reward rate for a farm at the given TVL. The band
// wavelength maps to a frequency, log-scaled into a 10-500% range and scaled by the
// band multiplier.
func (s Schedule) APY(tvl float64) float64 {
	band := s.ForTVL(tvl)

	wavelengthM := band.WavelengthNM * 1e-9
	frequency := speedOfLight / wavelengthM
	logFreq := math.Log10(frequency)

	baseAPY := 10 + (logFreq-14)*100
	finalAPY := baseAPY * band.RewardMultiplier

	return math.Max(10, math.Min(500, finalAPY))
}
