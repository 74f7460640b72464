// Package msg builds the wire messages: a canonical JSON payload plus a
// SHA-256 digest that lets the ingestion side detect corruption in transit
// or in storage.
package msg

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/juju/errors"

	"github.com/carbonready/fieldnode/internal/reading"
)

const TimeLayout = "2006-01-02T15:04:05Z"

// Readings carries the channel values formatted with exactly two fractional
// digits. Kept as strings so a received message can be re-serialized to the
// exact payload bytes for digest verification.
type Readings struct {
	SoilMoisture    string `json:"soilMoisture"`
	SoilTemperature string `json:"soilTemperature"`
	AirTemperature  string `json:"airTemperature"`
	Humidity        string `json:"humidity"`
}

// Payload is the digest input. Key order is fixed by field order and must
// not change: the digest covers these exact bytes.
type Payload struct {
	FarmID    string   `json:"farmId"`
	DeviceID  string   `json:"deviceId"`
	Timestamp string   `json:"timestamp"`
	Readings  Readings `json:"readings"`
}

// Wire is Payload plus the embedded digest, the final message form.
type Wire struct {
	Payload
	Hash string `json:"hash"`
}

type Builder struct {
	FarmID   string
	DeviceID string
}

// Build assembles the final message bytes for a valid reading. The digest
// is computed over the payload before the hash field exists in serialized
// form; hashing a payload that already contains a hash field would break
// verifiability downstream.
func (b Builder) Build(r reading.Reading) ([]byte, error) {
	if !r.Valid {
		panic("code error msg.Build requires a valid reading")
	}
	p := Payload{
		FarmID:    b.FarmID,
		DeviceID:  b.DeviceID,
		Timestamp: time.Unix(r.Timestamp, 0).UTC().Format(TimeLayout),
		Readings: Readings{
			SoilMoisture:    format2(r.SoilMoisture),
			SoilTemperature: format2(r.SoilTemperature),
			AirTemperature:  format2(r.AirTemperature),
			Humidity:        format2(r.Humidity),
		},
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Annotate(err, "msg payload")
	}
	sum := sha256.Sum256(pb)
	wb, err := json.Marshal(Wire{Payload: p, Hash: hex.EncodeToString(sum[:])})
	if err != nil {
		return nil, errors.Annotate(err, "msg wire")
	}
	return wb, nil
}

// Verify recomputes the digest of a wire message and compares it against
// the embedded hash field.
func Verify(b []byte) error {
	var w Wire
	if err := json.Unmarshal(b, &w); err != nil {
		return errors.Annotate(err, "msg verify")
	}
	pb, err := json.Marshal(w.Payload)
	if err != nil {
		return errors.Annotate(err, "msg verify")
	}
	sum := sha256.Sum256(pb)
	if d := hex.EncodeToString(sum[:]); d != w.Hash {
		return errors.Errorf("msg verify: digest mismatch computed=%s embedded=%s", d, w.Hash)
	}
	return nil
}

func format2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
