package sun

import (
	"math"
	"testing"
	"time"
)

func TestDaysSinceJ2000(t *testing.T) {
	t.Parallel()

	if d := DaysSinceJ2000(time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC)); d != 1 {
		t.Fatalf("days=%v", d)
	}
	if d := DaysSinceJ2000(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)); d != -0.5 {
		t.Fatalf("days=%v", d)
	}
}

func TestDeclination(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		at   time.Time
		y    float64
	}{
		{"march equinox", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), 0},
		{"june solstice", time.Date(2024, 6, 20, 20, 51, 0, 0, time.UTC), math.Sin(23.44 * math.Pi / 180)},
		{"december solstice", time.Date(2024, 12, 21, 9, 20, 0, 0, time.UTC), -math.Sin(23.44 * math.Pi / 180)},
	}
	for _, c := range cases {
		v := Direction(c.at)
		if math.Abs(v.Norm()-1) > 1e-12 {
			t.Errorf("%s: norm=%v", c.name, v.Norm())
		}
		if math.Abs(v.Y-c.y) > 0.005 {
			t.Errorf("%s: y=%v want %v", c.name, v.Y, c.y)
		}
	}
}

func TestSubsolarFollowsClock(t *testing.T) {
	t.Parallel()

	// UTC 正午直射点在本初子午线附近（差值为时差，最多约 4°）
	lon, lat := Subsolar(time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC))
	if math.Abs(lon) > 5 || math.Abs(lat) > 1 {
		t.Fatalf("subsolar=%v,%v", lon, lat)
	}
	// 6 小时后向西移动约 90°
	lon6, _ := Subsolar(time.Date(2024, 3, 20, 18, 0, 0, 0, time.UTC))
	if math.Abs(lon6-(lon-90)) > 1 {
		t.Fatalf("lon after 6h=%v start=%v", lon6, lon)
	}
}
