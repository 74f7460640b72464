package sensor

import (
	"math/rand"
	"time"

	"github.com/charmbracelet/log"

	"github.com/carbonready/fieldnode/internal/reading"
)

// Sim emulates the field probes with a slow random walk, for bench runs
// without hardware. Moisture goes through the same raw-counts calibration
// path as the capacitive probe, so calibration mistakes show up here too.
type Sim struct {
	log  *log.Logger
	rand *rand.Rand
	cal  reading.Calibration
	now  func() time.Time

	raw      int // simulated probe counts, drifts between wet and dry
	soilTemp float64
	airTemp  float64
	humidity float64
}

func NewSim(cal reading.Calibration, lg *log.Logger) *Sim {
	return &Sim{
		log:      lg,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cal:      cal,
		now:      time.Now,
		raw:      (cal.Dry + cal.Wet) / 2,
		soilTemp: 18,
		airTemp:  22,
		humidity: 55,
	}
}

func (s *Sim) Acquire() (reading.Reading, error) {
	s.raw += s.rand.Intn(61) - 30
	if s.raw < s.cal.Wet {
		s.raw = s.cal.Wet
	}
	if s.raw > s.cal.Dry {
		s.raw = s.cal.Dry
	}
	s.soilTemp = drift(s.rand, s.soilTemp, 0.2, reading.SoilTempMin, reading.SoilTempMax)
	s.airTemp = drift(s.rand, s.airTemp, 0.4, reading.AirTempMin, reading.AirTempMax)
	s.humidity = drift(s.rand, s.humidity, 1.0, reading.HumidityMin, reading.HumidityMax)

	r := reading.Reading{
		SoilMoisture:    s.cal.MoisturePercent(s.raw),
		SoilTemperature: s.soilTemp,
		AirTemperature:  s.airTemp,
		Humidity:        s.humidity,
		Timestamp:       s.now().UTC().Unix(),
	}
	r = r.Revalidate()
	s.log.Debugf("sim moisture=%.2f soil=%.2f air=%.2f hum=%.2f valid=%t",
		r.SoilMoisture, r.SoilTemperature, r.AirTemperature, r.Humidity, r.Valid)
	return r, nil
}

func drift(rnd *rand.Rand, v, step, min, max float64) float64 {
	v += (rnd.Float64()*2 - 1) * step
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}
