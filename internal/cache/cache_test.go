package cache

import (
	"strings"
	"testing"
	"time"
)

func TestParamsHash(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := ParamsHash(nil); got != "default" {
			t.Fatalf("expected default, got %q", got)
		}
	})

	t.Run("orderIndependent", func(t *testing.T) {
		a := map[string]string{"scale": "global", "ew": "10"}
		b := map[string]string{"ew": "10", "scale": "global"}
		if ParamsHash(a) != ParamsHash(b) {
			t.Fatalf("expected stable hash")
		}
		c := map[string]string{"ew": "11", "scale": "global"}
		if ParamsHash(a) == ParamsHash(c) {
			t.Fatalf("expected different hash for different params")
		}
	})
}

func TestKeys(t *testing.T) {
	params := map[string]string{"grid": "false"}
	img := ImageKey("demo", "png", params)
	if !strings.HasPrefix(img, "img:demo:png:") {
		t.Fatalf("unexpected image key %q", img)
	}
	if ImageKey("demo", "jpeg", params) == img {
		t.Fatalf("format must be part of the key")
	}
	if got := RegionKey("demo", 0, 10, 64, 32, nil); got != "region:demo:0,10,64x32:default" {
		t.Fatalf("unexpected region key %q", got)
	}
	if got := QueryKey("demo", "stats", 3, "row"); got != "q:demo:stats:3/row" {
		t.Fatalf("unexpected query key %q", got)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{ImageCacheSizeMB: 8, ImageTTL: time.Minute, Shards: 8, QueryCacheSize: 4})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetImage("k"); ok {
		t.Fatalf("unexpected hit on empty cache")
	}
	if err := m.SetImage("k", []byte("png-bytes")); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	data, ok := m.GetImage("k")
	if !ok || string(data) != "png-bytes" {
		t.Fatalf("GetImage = %q, %v", data, ok)
	}

	m.SetQuery("q", []byte(`{"min":1}`))
	if data, ok := m.GetQuery("q"); !ok || string(data) != `{"min":1}` {
		t.Fatalf("GetQuery = %q, %v", data, ok)
	}

	stats := m.Stats()
	if stats["image_cache_hits"].(int64) != 1 || stats["image_cache_miss"].(int64) != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	if err := m.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok := m.GetQuery("q"); ok {
		t.Fatalf("query survived purge")
	}
	if _, ok := m.GetImage("k"); ok {
		t.Fatalf("image survived purge")
	}
}
