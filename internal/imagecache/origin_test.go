package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		id      int64
		shard   int64
		dir     string
		wantURL string
	}{
		{id: 123456789, shard: 9, dir: "123456", wantURL: "https://basket-09.wb.ru/vol123456/part123456/123456789/images/c516x688/1.jpg"},
		{id: 1000, shard: 0, dir: "1", wantURL: "https://basket-00.wb.ru/vol1/part1/1000/images/c516x688/1.jpg"},
		{id: 42, shard: 2, dir: "", wantURL: "https://basket-02.wb.ru/vol/part/42/images/c516x688/1.jpg"},
	}
	for _, tt := range tests {
		loc := Locate(tt.id)
		assert.Equal(t, tt.shard, loc.Shard)
		assert.Equal(t, tt.dir, loc.Volume)
		assert.Equal(t, tt.dir, loc.Part)
		assert.Equal(t, tt.wantURL, loc.URL(DefaultOriginHost))
	}
}

func TestHTTPOrigin_Fetch(t *testing.T) {
	var lastPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastPath.Store(r.URL.Path)
		switch r.URL.Path {
		case "/vol12/part12/12345/images/c516x688/1.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/vol99/part99/99000/images/c516x688/1.jpg":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	origin := NewHTTPOrigin(server.Client(), server.URL+"/", 0)

	t.Run("success", func(t *testing.T) {
		data, err := origin.Fetch(context.Background(), 12345)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		assert.Equal(t, "/vol12/part12/12345/images/c516x688/1.jpg", lastPath.Load())
	})

	t.Run("non-success status", func(t *testing.T) {
		_, err := origin.Fetch(context.Background(), 777)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 404")
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := origin.Fetch(ctx, 99000)
		require.Error(t, err)
	})

	t.Run("object limit", func(t *testing.T) {
		small := NewHTTPOrigin(server.Client(), server.URL, 4)
		_, err := small.Fetch(context.Background(), 12345)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 4 bytes")
	})
}

func TestCache_WithHTTPOrigin(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if hits.Load() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("img"))
	}))
	defer server.Close()

	c := newTestCache(t, NewHTTPOrigin(server.Client(), server.URL, 0), Config{TTL: time.Minute, MaxBytes: 1024})

	_, err := c.Resolve(context.Background(), 5000)
	assert.ErrorIs(t, err, ErrOriginUnavailable)

	for i := 0; i < 3; i++ {
		data, err := c.Resolve(context.Background(), 5000)
		require.NoError(t, err)
		assert.Equal(t, []byte("img"), data)
	}
	assert.Equal(t, int64(2), hits.Load())
}
