// Package reading holds one acquisition of all sensor channels and the
// physical-range validation that decides whether it may be transmitted.
package reading

// ErrorValue is the probe failure marker. A channel at or below this value
// means "device error", never a real measurement.
const ErrorValue = -999.0

// Physical ranges of the field probes. Anything outside is a fault.
const (
	MoistureMin = 0.0
	MoistureMax = 100.0
	SoilTempMin = -10.0
	SoilTempMax = 60.0
	AirTempMin  = -10.0
	AirTempMax  = 60.0
	HumidityMin = 0.0
	HumidityMax = 100.0
)

// Reading is immutable after acquisition.
type Reading struct {
	SoilMoisture    float64 // percent
	SoilTemperature float64 // celsius
	AirTemperature  float64 // celsius
	Humidity        float64 // percent
	Timestamp       int64   // epoch seconds, UTC
	Valid           bool
}

// Revalidate returns a copy of r with Valid recomputed from the channel
// ranges. Valid is true only when every channel lies inside its physical
// range and the timestamp is set; an invalid reading is never transmitted
// or stored.
func (r Reading) Revalidate() Reading {
	r.Valid = channelOK(r.SoilMoisture, MoistureMin, MoistureMax) &&
		channelOK(r.SoilTemperature, SoilTempMin, SoilTempMax) &&
		channelOK(r.AirTemperature, AirTempMin, AirTempMax) &&
		channelOK(r.Humidity, HumidityMin, HumidityMax) &&
		r.Timestamp > 0
	return r
}

func channelOK(v, min, max float64) bool {
	if v <= ErrorValue {
		return false
	}
	return v >= min && v <= max
}

// Calibration holds the raw ADC endpoints recorded against dry and
// saturated soil during provisioning.
type Calibration struct {
	Dry int // counts in dry soil
	Wet int // counts in saturated soil
}

// MoisturePercent converts capacitive probe counts to percent. Lower counts
// mean more moisture. Result is clamped to [0,100]. Equal endpoints mean the
// device was never calibrated; that reads as a device error.
func (c Calibration) MoisturePercent(raw int) float64 {
	if c.Dry == c.Wet {
		return ErrorValue
	}
	m := 100.0 - float64(raw-c.Wet)/float64(c.Dry-c.Wet)*100.0
	if m < MoistureMin {
		m = MoistureMin
	}
	if m > MoistureMax {
		m = MoistureMax
	}
	return m
}
