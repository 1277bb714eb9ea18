package motors

import (
	"math"

	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// Full scale sense voltages of the current comparators.
const (
	vfsLow  = 0.325
	vfsHigh = 0.180
	// rsenseInternal is added to the sense resistor for the switch
	// resistance of the driver.
	rsenseInternal = 0.02
	maxCS          = 31
	fclk           = 12000000.0
)

// CurrentScale returns the current scale CS (0-31) for an RMS current in
// amps and whether the high sensitivity range (vsense) is needed.
func CurrentScale(amps, rsense float64) (cs uint32, vsense bool) {
	ma := math.Floor(amps * 1000)
	calc := func(vfs float64) float64 {
		return 32*math.Sqrt2*ma/1000*(rsense+rsenseInternal)/vfs - 1
	}
	val := calc(vfsLow)
	if val < 16 {
		vsense = true
		val = calc(vfsHigh)
	}
	switch {
	case val < 0:
		val = 0
	case val > maxCS:
		val = maxCS
	}
	return uint32(val), vsense
}

// RMSCurrent returns the RMS current in amps selected by cs and vsense.
func RMSCurrent(cs uint32, vsense bool, rsense float64) float64 {
	vfs := vfsLow
	if vsense {
		vfs = vfsHigh
	}
	return float64(cs+1) / 32 * vfs / (rsense + rsenseInternal) / math.Sqrt2
}

// holdScale returns the hold CS from the run CS, limiting the hold
// current to the run current.
func holdScale(runCS uint32, run, hold float64) uint32 {
	if run <= 0 {
		return 0
	}
	ratio := hold / run
	if ratio > 1 {
		ratio = 1
	}
	return uint32(float64(runCS) * ratio)
}

// mres returns the CHOPCONF.MRES encoding of microsteps.
func mres(microsteps int) uint32 {
	res := uint32(8)
	for ms := microsteps; ms > 1 && res > 0; ms >>= 1 {
		res--
	}
	return res
}

// tstepAt returns TSTEP at the given feed rate (mm/min) scaled by percent,
// saturated to the 20-bit threshold registers.
func tstepAt(feed, stepsPerMM float64, microsteps int, percent float64) uint32 {
	rate := feed / 60 * stepsPerMM * (256 / float64(microsteps))
	if rate <= 0 {
		return 0
	}
	tstep := fclk / rate * percent / 100
	if tstep >= float64(trinamic.FieldTCoolThrs.Mask) {
		return trinamic.FieldTCoolThrs.Mask
	}
	return uint32(tstep)
}

// feedAt returns the feed rate (mm/min) corresponding to tstep.
func feedAt(tstep uint32, stepsPerMM float64, microsteps int) float64 {
	if tstep == 0 || stepsPerMM <= 0 {
		return 0
	}
	return fclk / float64(tstep) * 60 / (stepsPerMM * 256 / float64(microsteps))
}
