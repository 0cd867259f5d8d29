package mqtt

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hygrod/hygrod/config"
)

// Tenths renders a float as a JSON number with exactly one decimal place,
// matching the sensor resolution instead of leaking float artifacts.
type Tenths float64

func (t Tenths) MarshalJSON() ([]byte, error) {
	return []byte(decimal.NewFromFloat(float64(t)).StringFixed(1)), nil
}

// String renders the value the same way it is published on the bare topics.
func (t Tenths) String() string {
	return decimal.NewFromFloat(float64(t)).StringFixed(1)
}

// Measurement is the JSON document published on a sensor state topic. All
// temperatures are degrees Celsius.
type Measurement struct {
	Sensor      string    `json:"sensor"`
	Model       string    `json:"model"`
	Location    string    `json:"location,omitempty"`
	Temperature Tenths    `json:"temperature"`
	Humidity    Tenths    `json:"humidity"`
	DewPoint    Tenths    `json:"dew_point"`
	Timestamp   time.Time `json:"timestamp"`
}

// EncodeMeasurement renders the JSON state document.
func EncodeMeasurement(m Measurement) ([]byte, error) {
	return json.Marshal(m)
}

// Sample is a value considered for publication on a topic.
type Sample struct {
	Value     float64
	Timestamp time.Time
}

// ShouldPublish evaluates whether a new sample should be published based on
// deadband and minimum-interval constraints. The first sample on a topic is
// always published.
func ShouldPublish(deadband *config.DeadbandConfig, minInterval time.Duration, last *Sample, next Sample) bool {
	if last == nil {
		return true
	}

	if minInterval > 0 && next.Timestamp.Sub(last.Timestamp) < minInterval {
		return false
	}

	if deadband == nil {
		return true
	}

	if deadband.Absolute != nil {
		diff := next.Value - last.Value
		if diff < 0 {
			diff = -diff
		}
		if diff < *deadband.Absolute {
			return false
		}
	}

	if deadband.Percent != nil && last.Value != 0 {
		diff := (next.Value - last.Value) / last.Value
		if diff < 0 {
			diff = -diff
		}
		if diff*100 < *deadband.Percent {
			return false
		}
	}

	return true
}
