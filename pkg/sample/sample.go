package sample

import (
	"time"

	"github.com/itohio/golux/pkg/config"
)

// Reading is one raw ADC sample with its diagnostic conversion.
type Reading struct {
	Timestamp  time.Time
	Raw        uint16 // Raw ADC code (0..MaxCode)
	Millivolts uint16 // Raw code scaled to the ADC full-scale voltage
}

// Converter turns raw ADC codes into Readings.
type Converter struct {
	maxCode     uint16
	fullScaleMV uint32
}

// NewConverter creates a converter for the configured ADC.
func NewConverter(cfg config.ADCConfig) Converter {
	return Converter{
		maxCode:     cfg.MaxCode(),
		fullScaleMV: uint32(cfg.FullScaleMV),
	}
}

// MaxCode returns the largest valid raw code.
func (c Converter) MaxCode() uint16 { return c.maxCode }

// InRange reports whether raw fits the ADC resolution.
func (c Converter) InRange(raw uint16) bool { return raw <= c.maxCode }

// Convert builds a Reading for raw taken at ts.
func (c Converter) Convert(raw uint16, ts time.Time) Reading {
	return Reading{
		Timestamp:  ts,
		Raw:        raw,
		Millivolts: Millivolts(raw, c.fullScaleMV, c.maxCode),
	}
}

// Millivolts converts a raw code to millivolts with integer arithmetic:
// mV = raw * fullScaleMV / maxCode.
func Millivolts(raw uint16, fullScaleMV uint32, maxCode uint16) uint16 {
	if maxCode == 0 {
		return 0
	}
	return uint16(uint32(raw) * fullScaleMV / uint32(maxCode))
}

// Percent scales a filtered code to [0,100]: v * 100 / maxCode.
func Percent(v uint16, maxCode uint16) int {
	if maxCode == 0 {
		return 0
	}
	return int(uint32(v) * 100 / uint32(maxCode))
}
