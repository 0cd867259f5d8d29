package dht

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDewPointReferenceValues(t *testing.T) {
	// 25 C at 50 %RH is the textbook case, dew point close to 13.9 C.
	assert.InDelta(t, 13.9, DewPoint(25, 50), 0.15)
	assert.InDelta(t, 13.9, DewPointFast(25, 50), 0.15)

	// The data sheet example reading.
	assert.InDelta(t, 19.0, DewPointFast(26.1, 65.2), 0.15)
}

func TestDewPointFastStaysWithinDocumentedDeviation(t *testing.T) {
	for celsius := 0.0; celsius <= 40; celsius += 5 {
		for humidity := 20.0; humidity <= 100; humidity += 10 {
			name := fmt.Sprintf("%gC/%g%%", celsius, humidity)
			ref := DewPoint(celsius, humidity)
			fast := DewPointFast(celsius, humidity)
			require.Falsef(t, math.IsNaN(ref), "reference NaN at %s", name)
			assert.InDeltaf(t, ref, fast, 0.66, "deviation bound at %s", name)

			// Physically the dew point cannot sit above the air
			// temperature; allow a whisker for the approximations.
			assert.LessOrEqualf(t, ref, celsius+0.2, "reference above air temperature at %s", name)
		}
	}
}

func TestDewPointBelowTemperatureWhenAirIsDry(t *testing.T) {
	assert.Less(t, DewPoint(20, 30), 5.0)
	assert.Greater(t, DewPoint(20, 95), 18.0)
}
