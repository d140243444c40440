package noise

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/zeusync/navsim/internal/core/geometry"
)

func TestZeroSigmaIsIdentity(t *testing.T) {
	src := rand.NewPCG(1, 2)
	for _, p := range []geometry.Pose2D{{}, {X: 1, Y: -2, Yaw: 3}, {X: 1e9, Y: -1e-9, Yaw: -100}} {
		assert.Equal(t, p, Perturb(p, 0, src))
	}

	inj, err := NewInjector(0, 0)
	require.NoError(t, err)
	p := geometry.Pose2D{X: 4, Y: 5, Yaw: 6}
	for i := 0; i < 10; i++ {
		assert.Equal(t, p, inj.Perturb(p))
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a, err := NewInjector(0.5, 42)
	require.NoError(t, err)
	b, err := NewInjector(0.5, 42)
	require.NoError(t, err)

	p := geometry.Pose2D{X: 1, Y: 1, Yaw: 1}
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Perturb(p), b.Perturb(p))
	}

	c, err := NewInjector(0.5, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a.Perturb(p), c.Perturb(p))
}

func TestPerturbDoesNotMutateInput(t *testing.T) {
	inj, err := NewInjector(1, 7)
	require.NoError(t, err)
	p := geometry.Pose2D{X: 1, Y: 2, Yaw: 3}
	q := inj.Perturb(p)
	assert.Equal(t, geometry.Pose2D{X: 1, Y: 2, Yaw: 3}, p)
	assert.NotEqual(t, p, q)
}

func TestPerturbStatistics(t *testing.T) {
	const (
		n     = 20000
		sigma = 0.2
	)
	inj, err := NewInjector(sigma, 12345)
	require.NoError(t, err)

	xs := make([]float64, n)
	ys := make([]float64, n)
	yaws := make([]float64, n)
	for i := range xs {
		q := inj.Perturb(geometry.Pose2D{})
		xs[i], ys[i], yaws[i] = q.X, q.Y, q.Yaw
	}

	for name, samples := range map[string][]float64{"x": xs, "y": ys, "yaw": yaws} {
		mean, std := stat.MeanStdDev(samples, nil)
		assert.InDelta(t, 0, mean, 0.01, name)
		assert.InDelta(t, sigma, std, 0.01, name)
	}
	// Independent axes.
	assert.InDelta(t, 0, stat.Correlation(xs, ys, nil), 0.05)
	assert.InDelta(t, 0, stat.Correlation(xs, yaws, nil), 0.05)
}

func TestNewInjectorValidation(t *testing.T) {
	for _, bad := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := NewInjector(bad, 1)
		assert.ErrorIs(t, err, ErrInvalidSigma)
	}

	inj, err := NewInjector(0.01, 0)
	require.NoError(t, err)
	assert.NotZero(t, inj.Seed())
	assert.Equal(t, 0.01, inj.Sigma())
}
