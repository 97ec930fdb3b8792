package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

// LastValueStore keeps the most recent reading per device in Redis/Valkey so
// dashboards can read it without querying the twin graph.
type LastValueStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewLastValueStore(rdb redis.Cmdable, ttl time.Duration) *LastValueStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LastValueStore{rdb: rdb, ttl: ttl}
}

func lastValueKey(deviceID string) string {
	return "twin:last:" + deviceID
}

func lastValueFields(r model.SensorReading, at time.Time) []interface{} {
	return []interface{}{
		"temperature", r.Temperature,
		"humidity", r.Humidity,
		"updated_at", at.UTC().Format(time.RFC3339),
	}
}

// Record overwrites the device hash and refreshes its expiry in one transaction.
func (s *LastValueStore) Record(ctx context.Context, deviceID string, r model.SensorReading, at time.Time) error {
	key := lastValueKey(deviceID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, lastValueFields(r, at)...)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis last value %s: %w", key, err)
	}
	return nil
}

// LastValue is the reading stored for a device, as served by the latest handler.
type LastValue struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	UpdatedAt   string  `json:"updated_at"`
}

// ErrNoLastValue is returned when the device has no (unexpired) reading.
var ErrNoLastValue = errors.New("no last value for device")

func (s *LastValueStore) Latest(ctx context.Context, deviceID string) (LastValue, error) {
	key := lastValueKey(deviceID)
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return LastValue{}, fmt.Errorf("redis last value %s: %w", key, err)
	}
	if len(m) == 0 {
		return LastValue{}, ErrNoLastValue
	}
	lv := LastValue{DeviceID: deviceID, UpdatedAt: m["updated_at"]}
	if lv.Temperature, err = strconv.ParseFloat(m["temperature"], 64); err != nil {
		return LastValue{}, fmt.Errorf("redis last value %s: temperature: %w", key, err)
	}
	if lv.Humidity, err = strconv.ParseFloat(m["humidity"], 64); err != nil {
		return LastValue{}, fmt.Errorf("redis last value %s: humidity: %w", key, err)
	}
	return lv, nil
}

// NewLatestHandler serve GET /twins/{id}/latest dal mirror Redis.
func NewLatestHandler(s *LastValueStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "missing device id", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		lv, err := s.Latest(ctx, id)
		switch {
		case errors.Is(err, ErrNoLastValue):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", "cache")
		_ = json.NewEncoder(w).Encode(lv)
	})
}
