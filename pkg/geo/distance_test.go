package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceZero(t *testing.T) {
	assert.Equal(t, 0.0, Distance(55.75, 37.62, 55.75, 37.62))
	assert.Equal(t, 0.0, Distance(0, 0, 0, 0))
}

func TestDistanceSymmetric(t *testing.T) {
	d1 := Distance(55.75, 37.62, 48.85, 2.35)
	d2 := Distance(48.85, 2.35, 55.75, 37.62)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestDistanceMoscowSaintPetersburg(t *testing.T) {
	d := Distance(55.75, 37.62, 59.93, 30.34)
	if math.Abs(d-634) > 5 {
		t.Fatalf("expected ~634 km, got %.1f", d)
	}
}
