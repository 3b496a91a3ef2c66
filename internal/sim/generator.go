// Package sim generates synthetic telemetry that feeds the pipeline through
// the same ingestion contract real sensors use.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/LuizPaulo1002/neuramaint/internal/ingest"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

// Sink is the ingestion contract synthetic readings pass through.
// Satisfied by *ingest.Ingestor.
type Sink interface {
	CreateReading(ctx context.Context, input ingest.CreateReadingInput) (*model.SensorReading, error)
}

// Config tunes the generation loop.
type Config struct {
	Interval           time.Duration
	FailureProbability float64 // chance per sensor per tick of entering failure mode
	NoiseLevel         float64 // multiplier over the profile noise magnitude
	FailureDuration    time.Duration
}

// ConfigPatch is a partial config update; nil fields keep their value.
type ConfigPatch struct {
	Interval           *time.Duration
	FailureProbability *float64
	NoiseLevel         *float64
	FailureDuration    *time.Duration
}

// DefaultConfig returns the out-of-the-box generation settings.
func DefaultConfig() Config {
	return Config{
		Interval:           5 * time.Second,
		FailureProbability: 0.01,
		NoiseLevel:         1.0,
		FailureDuration:    2 * time.Minute,
	}
}

// sensorState is the per-sensor simulation state, mutated every tick and
// discarded on stop/reset.
type sensorState struct {
	sensor       *model.Sensor
	lastValue    float64
	trend        float64
	failing      bool
	failureStart time.Time
}

// Generator emits one reading per active sensor per tick. A single
// cancellable ticker drives the loop; each sensor's
// generate-persist-process unit fans out without blocking the next tick.
type Generator struct {
	sink     Sink
	sensors  store.SensorStore
	profiles map[model.SensorType]Profile
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
	cfg     Config
	states  map[int64]*sensorState
	ticker  *time.Ticker
	stop    chan struct{}
	ticks   int64
	rng     *rand.Rand

	wg sync.WaitGroup
}

// NewGenerator creates a stopped generator.
func NewGenerator(sink Sink, sensors store.SensorStore, profiles map[model.SensorType]Profile, logger *slog.Logger) *Generator {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Generator{
		sink:     sink,
		sensors:  sensors,
		profiles: profiles,
		logger:   logger,
		cfg:      DefaultConfig(),
		states:   make(map[int64]*sensorState),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the generation loop. Fails if already running or if no
// active sensors exist.
func (g *Generator) Start(ctx context.Context, cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return model.NewInvalidStateError("generator already running")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.FailureDuration <= 0 {
		cfg.FailureDuration = DefaultConfig().FailureDuration
	}
	if cfg.NoiseLevel <= 0 {
		cfg.NoiseLevel = 1.0
	}
	if cfg.FailureProbability < 0 || cfg.FailureProbability > 1 {
		return model.NewValidationError("failureProbability", "must be within [0,1]")
	}

	active, err := g.sensors.ListActiveSensors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active sensors: %w", err)
	}
	if len(active) == 0 {
		return model.NewInvalidStateError("no active sensors to simulate")
	}

	g.states = make(map[int64]*sensorState, len(active))
	for _, sn := range active {
		g.states[sn.ID] = g.newState(sn)
	}

	g.cfg = cfg
	g.ticker = time.NewTicker(cfg.Interval)
	g.stop = make(chan struct{})
	g.running = true
	g.ticks = 0

	go g.loop(g.ticker, g.stop)

	g.logger.Info("Telemetry generator started",
		"interval", cfg.Interval,
		"failure_probability", cfg.FailureProbability,
		"noise_level", cfg.NoiseLevel,
		"sensors", len(active))
	return nil
}

// Stop cancels the tick timer immediately and waits for in-flight per-sensor
// units to finish. Work already handed to the pipeline drains there.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.ticker.Stop()
	close(g.stop)
	g.running = false
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("Telemetry generator stopped")
}

// UpdateConfig applies a partial config change, restarting the loop cleanly
// when running.
func (g *Generator) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	g.mu.Lock()
	cfg := g.cfg
	wasRunning := g.running
	g.mu.Unlock()

	if patch.Interval != nil {
		cfg.Interval = *patch.Interval
	}
	if patch.FailureProbability != nil {
		cfg.FailureProbability = *patch.FailureProbability
	}
	if patch.NoiseLevel != nil {
		cfg.NoiseLevel = *patch.NoiseLevel
	}
	if patch.FailureDuration != nil {
		cfg.FailureDuration = *patch.FailureDuration
	}

	if wasRunning {
		g.Stop()
		return g.Start(ctx, cfg)
	}

	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
	return nil
}

// ForceFailure puts a sensor into failure mode immediately.
func (g *Generator) ForceFailure(sensorID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[sensorID]
	if !ok {
		return model.NewNotFoundError("sensor not simulated")
	}
	if !state.failing {
		state.failing = true
		state.failureStart = time.Now()
		g.logger.Info("Failure forced", "sensor_id", sensorID)
	}
	return nil
}

// ResetAll clears failure flags and re-centers every sensor in its normal
// range.
func (g *Generator) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, state := range g.states {
		fresh := g.newState(state.sensor)
		*state = *fresh
	}
	g.logger.Info("Simulation state reset", "sensors", len(g.states))
}

// GenerateOne produces and ingests a single reading for one sensor, outside
// the tick loop. Used for manual and test triggering.
func (g *Generator) GenerateOne(ctx context.Context, sensorID int64) (*model.SensorReading, error) {
	g.mu.Lock()
	state, ok := g.states[sensorID]
	if !ok {
		sn, err := g.sensors.GetSensor(ctx, sensorID)
		if err != nil {
			return nil, err
		}
		if !sn.Active {
			return nil, model.NewValidationError("sensorId", "sensor is not active")
		}
		state = g.newState(sn)
		g.states[sensorID] = state
	}
	value, quality := g.nextValue(state)
	g.mu.Unlock()

	return g.sink.CreateReading(ctx, ingest.CreateReadingInput{
		SensorID: sensorID,
		Value:    value,
		Quality:  &quality,
	})
}

// Status returns the generator's runtime state.
func (g *Generator) Status() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	failing := 0
	for _, state := range g.states {
		if state.failing {
			failing++
		}
	}

	return map[string]interface{}{
		"running":             g.running,
		"interval":            g.cfg.Interval.String(),
		"failure_probability": g.cfg.FailureProbability,
		"noise_level":         g.cfg.NoiseLevel,
		"sensors":             len(g.states),
		"failing_sensors":     failing,
		"ticks":               g.ticks,
	}
}

// Statistics returns per-type averages over the last emitted values plus
// the failing-sensor count.
func (g *Generator) Statistics() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sums := make(map[model.SensorType]float64)
	counts := make(map[model.SensorType]int)
	failing := 0
	for _, state := range g.states {
		sums[state.sensor.Type] += state.lastValue
		counts[state.sensor.Type]++
		if state.failing {
			failing++
		}
	}

	averages := make(map[string]float64, len(sums))
	for typ, sum := range sums {
		averages[string(typ)] = sum / float64(counts[typ])
	}

	return map[string]interface{}{
		"averages_by_type": averages,
		"failing_sensors":  failing,
		"sensor_count":     len(g.states),
		"ticks":            g.ticks,
	}
}

func (g *Generator) loop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			g.tick()
		case <-stop:
			return
		}
	}
}

// tick emits one reading per sensor, fanning out the persist-and-process
// units without waiting for each other or for the next tick. A failure in
// one sensor's unit never affects its siblings.
func (g *Generator) tick() {
	g.mu.Lock()
	g.ticks++
	type emission struct {
		sensorID int64
		value    float64
		quality  float64
	}
	emissions := make([]emission, 0, len(g.states))
	now := time.Now()
	for id, state := range g.states {
		// Spontaneous failure injection, with auto-recovery once the
		// failure has run its course.
		if state.failing && now.Sub(state.failureStart) > g.cfg.FailureDuration {
			state.failing = false
		} else if !state.failing && g.rng.Float64() < g.cfg.FailureProbability {
			state.failing = true
			state.failureStart = now
			g.logger.Info("Sensor entering failure mode", "sensor_id", id)
		}

		value, quality := g.nextValue(state)
		emissions = append(emissions, emission{sensorID: id, value: value, quality: quality})
	}
	g.mu.Unlock()

	for _, em := range emissions {
		em := em
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			quality := em.quality
			if _, err := g.sink.CreateReading(ctx, ingest.CreateReadingInput{
				SensorID: em.sensorID,
				Value:    em.value,
				Quality:  &quality,
			}); err != nil {
				g.logger.Warn("Failed to ingest synthetic reading",
					"sensor_id", em.sensorID,
					"error", err)
			}
		}()
	}
}

// nextValue advances the simulation state one step and returns the emitted
// value and quality score. Caller holds g.mu.
func (g *Generator) nextValue(state *sensorState) (float64, float64) {
	profile := g.profiles[state.sensor.Type]

	if state.failing {
		// Failure mode ignores the trend model entirely.
		value := profile.CriticalMin + g.rng.Float64()*(profile.CriticalMax-profile.CriticalMin)
		state.lastValue = value
		return value, 50 + g.rng.Float64()*30
	}

	state.trend += uniform(g.rng, profile.TrendStep/4)
	state.trend = clamp(state.trend, -profile.TrendStep, profile.TrendStep)

	next := state.lastValue + state.trend + uniform(g.rng, profile.TrendStep/2)
	next = clamp(next, profile.NormalMin, profile.NormalMax)
	// Noise is layered after clamping, allowing brief excursions past the
	// normal range.
	next += uniform(g.rng, profile.Noise/2) * g.cfg.NoiseLevel

	state.lastValue = next
	return next, 90 + g.rng.Float64()*10
}

func (g *Generator) newState(sn *model.Sensor) *sensorState {
	profile := g.profiles[sn.Type]
	mid := (profile.NormalMin + profile.NormalMax) / 2
	return &sensorState{
		sensor:    sn,
		lastValue: mid + uniform(g.rng, (profile.NormalMax-profile.NormalMin)/4),
	}
}

// uniform draws from (-halfRange, +halfRange).
func uniform(rng *rand.Rand, halfRange float64) float64 {
	return (rng.Float64()*2 - 1) * halfRange
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
