package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/value"
)

// Event is one pothole detection reported by a client.
type Event struct {
	ID          string      `json:"id"`
	Seq         uint64      `json:"seq"`
	ClientTS    value.Value `json:"client_ts"`
	ReceivedAt  time.Time   `json:"received"`
	Location    value.Value `json:"location"`
	Gyro        value.Value `json:"gyro"`
	Accel       value.Value `json:"accel"`
	Orientation value.Value `json:"orientation"`
	Metrics     value.Value `json:"metrics"`
	UserAgent   string      `json:"userAgent"`
	SourceAddr  string      `json:"ip"`
}

// EventFromPayload copies the known fields out of a client payload. Missing
// fields stay null; nothing is rejected.
func EventFromPayload(payload value.Value, userAgent, sourceAddr string) Event {
	get := func(key string) value.Value {
		v, _ := payload.Get(key)
		return v
	}
	return Event{
		ClientTS:    get("ts"),
		Location:    get("location"),
		Gyro:        get("gyro"),
		Accel:       get("accel"),
		Orientation: get("orientation"),
		Metrics:     get("metrics"),
		UserAgent:   userAgent,
		SourceAddr:  sourceAddr,
	}
}

// ErrSampleNotObject is returned for samples that are not JSON objects.
var ErrSampleNotObject = errors.New("sample must be a JSON object")

// ValidateSample applies the only shape rule for continuous samples: a
// non-null gyro field must be an object carrying x, y and z.
func ValidateSample(sample value.Value) error {
	if !sample.IsMap() {
		return ErrSampleNotObject
	}
	gyro, ok := sample.Get("gyro")
	if !ok || gyro.IsNull() {
		return nil
	}
	if !gyro.IsMap() {
		return fmt.Errorf("gyro must be an object")
	}
	for _, key := range []string{"x", "y", "z"} {
		if !gyro.Has(key) {
			return fmt.Errorf("gyro.%s missing", key)
		}
	}
	return nil
}
