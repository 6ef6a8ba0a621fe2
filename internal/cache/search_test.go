package cache

import (
	"context"
	"testing"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

func TestNilCacheIsNoop(t *testing.T) {
	var c *SearchCache
	ctx := context.Background()

	rows, ok := c.Get(ctx, "charger", 30)
	if ok || rows != nil {
		t.Fatalf("nil cache Get = (%v, %v)", rows, ok)
	}
	c.Put(ctx, "charger", 30, []models.SignalMatch{{TableID: "24"}}) // must not panic
}

func TestKeyNormalizesQuery(t *testing.T) {
	c := &SearchCache{}
	if c.key("  Charger ", 30) != c.key("charger", 30) {
		t.Fatalf("keys differ for equivalent queries")
	}
	if c.key("charger", 30) == c.key("charger", 10) {
		t.Fatalf("limit not part of the key")
	}
}
