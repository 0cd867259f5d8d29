package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hygrod/hygrod/config"
)

func TestMeasurementEncodesTenths(t *testing.T) {
	m := Measurement{
		Sensor:      "indoor",
		Model:       "DHT22",
		Temperature: Tenths(26.100000000000001),
		Humidity:    Tenths(65.2),
		DewPoint:    Tenths(19),
		Timestamp:   time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC),
	}

	body, err := EncodeMeasurement(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc := string(body)
	for _, want := range []string{
		`"temperature":26.1`,
		`"humidity":65.2`,
		`"dew_point":19.0`,
		`"timestamp":"2024-05-04T12:00:00Z"`,
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document %s missing %s", doc, want)
		}
	}
	if strings.Contains(doc, "location") {
		t.Fatalf("empty location should be omitted: %s", doc)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("document is not valid json: %v", err)
	}
}

func TestTenthsStringMatchesPayload(t *testing.T) {
	cases := map[float64]string{
		26.1:  "26.1",
		-0.1:  "-0.1",
		40:    "40.0",
		65.25: "65.3",
	}
	for value, want := range cases {
		if got := Tenths(value).String(); got != want {
			t.Fatalf("Tenths(%v) = %q, want %q", value, got, want)
		}
	}
}

func TestShouldPublish(t *testing.T) {
	base := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	abs := func(v float64) *config.DeadbandConfig { return &config.DeadbandConfig{Absolute: &v} }
	pct := func(v float64) *config.DeadbandConfig { return &config.DeadbandConfig{Percent: &v} }

	cases := []struct {
		name        string
		deadband    *config.DeadbandConfig
		minInterval time.Duration
		last        *Sample
		next        Sample
		want        bool
	}{
		{
			name: "first sample always publishes",
			next: Sample{Value: 26.1, Timestamp: base},
			want: true,
		},
		{
			name:        "min interval suppresses",
			minInterval: time.Minute,
			last:        &Sample{Value: 26.1, Timestamp: base},
			next:        Sample{Value: 30, Timestamp: base.Add(30 * time.Second)},
			want:        false,
		},
		{
			name:        "min interval elapsed",
			minInterval: time.Minute,
			last:        &Sample{Value: 26.1, Timestamp: base},
			next:        Sample{Value: 30, Timestamp: base.Add(time.Minute)},
			want:        true,
		},
		{
			name:     "absolute deadband suppresses",
			deadband: abs(0.5),
			last:     &Sample{Value: 26.1, Timestamp: base},
			next:     Sample{Value: 26.4, Timestamp: base.Add(time.Minute)},
			want:     false,
		},
		{
			name:     "absolute deadband passes",
			deadband: abs(0.5),
			last:     &Sample{Value: 26.1, Timestamp: base},
			next:     Sample{Value: 26.6, Timestamp: base.Add(time.Minute)},
			want:     true,
		},
		{
			name:     "percent deadband suppresses",
			deadband: pct(10),
			last:     &Sample{Value: 50, Timestamp: base},
			next:     Sample{Value: 52, Timestamp: base.Add(time.Minute)},
			want:     false,
		},
		{
			name:     "percent deadband passes",
			deadband: pct(10),
			last:     &Sample{Value: 50, Timestamp: base},
			next:     Sample{Value: 56, Timestamp: base.Add(time.Minute)},
			want:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldPublish(tc.deadband, tc.minInterval, tc.last, tc.next); got != tc.want {
				t.Fatalf("ShouldPublish() = %v, want %v", got, tc.want)
			}
		})
	}
}
