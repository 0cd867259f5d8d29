package sim

import (
	"errors"
	"testing"

	"github.com/hygrod/hygrod/drivers/dht"
)

func TestWalkStaysInRange(t *testing.T) {
	sensor := New(dht.DHT22,
		WithSeed(1),
		WithTemperatureRange(20, 22),
		WithHumidityRange(50, 55),
	)
	for i := 0; i < 200; i++ {
		if err := sensor.Read(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		temperature := sensor.Temperature(dht.Celsius)
		if temperature < 20 || temperature > 22 {
			t.Fatalf("read %d: temperature %v out of range", i, temperature)
		}
		humidity := sensor.Humidity()
		if humidity < 50 || humidity > 55 {
			t.Fatalf("read %d: humidity %v out of range", i, humidity)
		}
	}
}

func TestDHT11Resolution(t *testing.T) {
	sensor := New(dht.DHT11, WithSeed(7))
	for i := 0; i < 50; i++ {
		if err := sensor.Read(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		temperature := sensor.Temperature(dht.Celsius)
		if temperature != float64(int(temperature)) {
			t.Fatalf("read %d: temperature %v not a whole degree", i, temperature)
		}
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	first := New(dht.DHT22, WithSeed(42))
	second := New(dht.DHT22, WithSeed(42))
	for i := 0; i < 20; i++ {
		if err := first.Read(); err != nil {
			t.Fatalf("first read %d: %v", i, err)
		}
		if err := second.Read(); err != nil {
			t.Fatalf("second read %d: %v", i, err)
		}
		if first.Temperature(dht.Celsius) != second.Temperature(dht.Celsius) {
			t.Fatalf("read %d: walks diverged", i)
		}
		if first.Humidity() != second.Humidity() {
			t.Fatalf("read %d: humidity walks diverged", i)
		}
	}
}

func TestFailureInjection(t *testing.T) {
	sensor := New(dht.DHT22, WithSeed(3), WithFailureRate(1))
	err := sensor.Read()
	if err == nil {
		t.Fatal("expected every read to fail at rate 1")
	}
	known := errors.Is(err, dht.ErrChecksum) ||
		errors.Is(err, dht.ErrAckTimeout) ||
		errors.Is(err, dht.ErrNotDetected)
	if !known {
		t.Fatalf("injected error %v is not a known bus error", err)
	}
}

func TestFailureKeepsLastValues(t *testing.T) {
	sensor := New(dht.DHT22, WithSeed(9))
	if err := sensor.Read(); err != nil {
		t.Fatalf("read: %v", err)
	}
	temperature := sensor.Temperature(dht.Celsius)
	humidity := sensor.Humidity()

	sensor.failureRate = 1
	if err := sensor.Read(); err == nil {
		t.Fatal("expected a failure")
	}
	if sensor.Temperature(dht.Celsius) != temperature || sensor.Humidity() != humidity {
		t.Fatal("failed read must not move the walk")
	}
}

func TestScaleConversion(t *testing.T) {
	sensor := New(dht.DHT22, WithSeed(5), WithTemperatureRange(25, 25))
	if err := sensor.Read(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := sensor.Temperature(dht.Celsius); got != 25 {
		t.Fatalf("celsius = %v, want 25", got)
	}
	if got := sensor.Temperature(dht.Fahrenheit); got != 77 {
		t.Fatalf("fahrenheit = %v, want 77", got)
	}
	if got := sensor.Temperature(dht.Kelvin); got != 298.15 {
		t.Fatalf("kelvin = %v, want 298.15", got)
	}
}
