package random_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/soulforge/internal/game/random"
)

type fixedSrc struct {
	f float64
	i int
}

func (s fixedSrc) Float64() float64 { return s.f }
func (s fixedSrc) Intn(n int) int {
	if s.i >= n {
		return n - 1
	}
	return s.i
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := random.NewSeededSource(42)
	b := random.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
		assert.Equal(t, a.Intn(10), b.Intn(10))
	}
}

func TestUniform_Bounds(t *testing.T) {
	assert.Equal(t, 2.0, random.Uniform(fixedSrc{f: 0}, 2, 4))
	assert.Equal(t, 3.0, random.Uniform(fixedSrc{f: 0.5}, 2, 4))
}

func TestSymmetric_MidpointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, random.Symmetric(fixedSrc{f: 0.5}, 0.2))
	assert.InDelta(t, -0.2, random.Symmetric(fixedSrc{f: 0}, 0.2), 1e-12)
}

func TestPick_EmptyReturnsZero(t *testing.T) {
	assert.Equal(t, "", random.Pick[string](fixedSrc{}, nil))
	assert.Equal(t, "b", random.Pick(fixedSrc{i: 1}, []string{"a", "b", "c"}))
}

func TestProperty_CryptoSource_InRange(t *testing.T) {
	src := random.NewCryptoSource()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 1000).Draw(rt, "n")
		v := src.Intn(n)
		if v < 0 || v >= n {
			rt.Fatalf("Intn(%d) = %d out of range", n, v)
		}
		f := src.Float64()
		if f < 0 || f >= 1 {
			rt.Fatalf("Float64() = %v out of range", f)
		}
	})
}

func TestCryptoSource_IntnPanicsOnNonPositive(t *testing.T) {
	assert.Panics(t, func() { random.NewCryptoSource().Intn(0) })
}
