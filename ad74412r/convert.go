package ad74412r

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

// Board constants.
const (
	SenseResistance = 100 * physic.Ohm  // current sense resistor
	RtdReference    = 2100 * physic.Ohm // resistance measurement reference
	DacVoltageSpan  = 11 * physic.Volt
	DacCurrentSpan  = 25 * physic.MilliAmpere
	DiagSpan        = 2500 * physic.MilliVolt
)

// Span describes the input window of an ADC range.
type Span struct {
	Low  physic.ElectricPotential
	High physic.ElectricPotential
}

// RangeSpan returns the input window of an ADC range code.
func RangeSpan(code uint8) Span {
	switch code {
	case Range0To2V5Ext:
		return Span{0, 2500 * physic.MilliVolt}
	case RangeMinus2V5To0:
		return Span{-2500 * physic.MilliVolt, 0}
	case RangePm2V5:
		return Span{-2500 * physic.MilliVolt, 2500 * physic.MilliVolt}
	case RangePm10V:
		return Span{-10 * physic.Volt, 10 * physic.Volt}
	default:
		return Span{0, 10 * physic.Volt}
	}
}

// AdcVoltage converts a raw result to the voltage seen by the ADC.
func AdcVoltage(raw uint16, rangeCode uint8) physic.ElectricPotential {
	s := RangeSpan(rangeCode)
	width := int64(s.High - s.Low)
	return s.Low + physic.ElectricPotential(int64(raw)*width/AdcMax)
}

// AdcCurrent converts a raw result taken across the sense resistor.
func AdcCurrent(raw uint16, rangeCode uint8) physic.ElectricCurrent {
	v := AdcVoltage(raw, rangeCode)
	// nV divided by whole ohms is nA
	return physic.ElectricCurrent(int64(v) / int64(SenseResistance/physic.Ohm))
}

// RtdResistance converts a raw result of the resistance function. The
// chip measures the RTD against the internal reference as a ratio.
func RtdResistance(raw uint16) physic.ElectricResistance {
	if raw >= AdcMax {
		return physic.ElectricResistance(math.MaxInt64)
	}
	return physic.ElectricResistance(int64(raw) * int64(RtdReference) / int64(AdcMax-raw))
}

// DiagVoltage converts a diagnostic result.
func DiagVoltage(raw uint16) physic.ElectricPotential {
	return physic.ElectricPotential(int64(raw) * int64(DiagSpan) / AdcMax)
}

// DacCodeForVoltage returns the DAC code for v, clamped to full scale.
func DacCodeForVoltage(v physic.ElectricPotential) uint16 {
	return dacCode(int64(v), int64(DacVoltageSpan))
}

// DacCodeForCurrent returns the DAC code for i, clamped to full scale.
func DacCodeForCurrent(i physic.ElectricCurrent) uint16 {
	return dacCode(int64(i), int64(DacCurrentSpan))
}

func dacCode(v, span int64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= span {
		return DacMax
	}
	return uint16((v*DacMax + span/2) / span)
}

// DacVoltage is the inverse of DacCodeForVoltage.
func DacVoltage(code uint16) physic.ElectricPotential {
	return physic.ElectricPotential(int64(code&DacMax) * int64(DacVoltageSpan) / DacMax)
}

// DacCurrent is the inverse of DacCodeForCurrent.
func DacCurrent(code uint16) physic.ElectricCurrent {
	return physic.ElectricCurrent(int64(code&DacMax) * int64(DacCurrentSpan) / DacMax)
}

// PT100 Callendar-Van Dusen coefficients.
const (
	rtdA  = 3.9083e-3
	rtdB  = -5.775e-7
	rtdR0 = 100.0
)

// PT100Temperature converts a PT100 resistance to temperature using the
// quadratic Callendar-Van Dusen form, valid above 0 °C and within 0.1 °C
// down to -50 °C.
func PT100Temperature(r physic.ElectricResistance) physic.Temperature {
	ohms := float64(r) / float64(physic.Ohm)
	disc := rtdA*rtdA - 4*rtdB*(1-ohms/rtdR0)
	if disc < 0 {
		disc = 0
	}
	celsius := (-rtdA + math.Sqrt(disc)) / (2 * rtdB)
	return physic.ZeroCelsius + physic.Temperature(celsius*float64(physic.Celsius))
}
