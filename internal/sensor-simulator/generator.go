package sensor_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

const (
	// jitter: ampiezza della variazione uniforme attorno al valore base.
	jitter = 5.0

	minTemperature = -50.0
	maxTemperature = 100.0
	minHumidity    = 10.0
	maxHumidity    = 95.0
)

// DataGenerator produce letture casuali attorno ai valori base del device.
type DataGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rnd: rand.New(rand.NewSource(seed))}
}

// Next returns base ± uniform(jitter), rounded to one decimal.
// Temperature is clamped to [-50, 100], humidity to [10, 95].
func (g *DataGenerator) Next(d model.Device) model.SensorReading {
	g.mu.Lock()
	dt := g.uniform()
	dh := g.uniform()
	g.mu.Unlock()

	return model.SensorReading{
		Temperature: round1(clamp(d.BaseTemperature+dt, minTemperature, maxTemperature)),
		Humidity:    round1(clamp(d.BaseHumidity+dh, minHumidity, maxHumidity)),
	}
}

func (g *DataGenerator) uniform() float64 {
	return (g.rnd.Float64()*2 - 1) * jitter
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
