package clock

import (
	"testing"
	"time"
)

func TestFakeNowAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Fake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("expected 90s elapsed, got %v", got)
	}
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ticker := c.NewTicker(15 * time.Second)
	defer ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("expected tick after 15s")
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker must not fire")
	default:
	}
}
