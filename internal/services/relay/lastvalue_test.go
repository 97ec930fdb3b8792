package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
)

// fakeHashes implementa solo HGetAll; il resto di Cmdable non viene usato.
type fakeHashes struct {
	redis.Cmdable
	data map[string]map[string]string
	err  error
}

func (f *fakeHashes) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	return redis.NewMapStringStringResult(f.data[key], nil)
}

func TestLatestHandler(t *testing.T) {
	store := NewLastValueStore(&fakeHashes{data: map[string]map[string]string{
		"twin:last:Room1": {"temperature": "21.5", "humidity": "47.2", "updated_at": "2024-05-01T12:00:00Z"},
		"twin:last:bad":   {"temperature": "warm", "humidity": "1"},
	}}, 0)

	mux := http.NewServeMux()
	mux.Handle("GET /twins/{id}/latest", NewLatestHandler(store))

	tests := []struct {
		path   string
		status int
	}{
		{"/twins/Room1/latest", http.StatusOK},
		{"/twins/ghost/latest", http.StatusNotFound},
		{"/twins/bad/latest", http.StatusBadGateway},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d", tt.path, rec.Code, tt.status)
		}
		if tt.status != http.StatusOK {
			continue
		}
		var lv LastValue
		if err := json.Unmarshal(rec.Body.Bytes(), &lv); err != nil {
			t.Fatal(err)
		}
		want := LastValue{DeviceID: "Room1", Temperature: 21.5, Humidity: 47.2, UpdatedAt: "2024-05-01T12:00:00Z"}
		if lv != want {
			t.Fatalf("latest = %+v, want %+v", lv, want)
		}
	}
}

func TestLatestRedisError(t *testing.T) {
	boom := errors.New("connection refused")
	store := NewLastValueStore(&fakeHashes{err: boom}, 0)
	if _, err := store.Latest(context.Background(), "Room1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
