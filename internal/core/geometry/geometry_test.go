package geometry

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func TestToLocalSelfIsZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		p := Pose2D{X: rng.NormFloat64() * 50, Y: rng.NormFloat64() * 50, Yaw: rng.NormFloat64() * 10}
		dx, dy := ToLocal(p, p)
		assert.Equal(t, 0.0, dx)
		assert.Equal(t, 0.0, dy)
	}
}

func TestToLocalFacingPlusY(t *testing.T) {
	dx, dy := ToLocal(Pose2D{Yaw: math.Pi / 2}, Pose2D{X: 1})
	assert.InDelta(t, 0, dx, tol)
	assert.InDelta(t, -1, dy, tol)
}

func TestToLocalTranslationOnly(t *testing.T) {
	dx, dy := ToLocal(Pose2D{X: 1, Y: 1}, Pose2D{X: 5, Y: -2, Yaw: 3})
	assert.Equal(t, 4.0, dx)
	assert.Equal(t, -3.0, dy)
}

func TestToLocalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		origin := Pose2D{X: rng.Float64()*20 - 10, Y: rng.Float64()*20 - 10, Yaw: rng.Float64()*4*math.Pi - 2*math.Pi}
		target := Pose2D{X: rng.Float64()*20 - 10, Y: rng.Float64()*20 - 10}

		dx, dy := ToLocal(origin, target)
		back := FromLocal(origin, dx, dy)

		assert.InDelta(t, target.X, back.X, tol)
		assert.InDelta(t, target.Y, back.Y, tol)
		// Rotation preserves distance.
		assert.InDelta(t, math.Hypot(target.X-origin.X, target.Y-origin.Y), math.Hypot(dx, dy), tol)
	}
}

func TestNormalizeYaw(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-5 * math.Pi / 2, -math.Pi / 2},
		{4 * math.Pi, 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, NormalizeYaw(c.in), tol, "in=%v", c.in)
	}
}

func TestIsFinite(t *testing.T) {
	assert.True(t, Pose2D{X: 1, Y: 2, Yaw: 3}.IsFinite())
	assert.False(t, Pose2D{X: math.NaN()}.IsFinite())
	assert.False(t, Pose2D{Yaw: math.Inf(-1)}.IsFinite())
	assert.True(t, Velocity2D{Linear: 1, Angular: -1}.IsFinite())
	assert.False(t, Velocity2D{Angular: math.Inf(1)}.IsFinite())
}

func TestQuaternionYawRoundTrip(t *testing.T) {
	for _, yaw := range []float64{0, 0.3, -1.2, math.Pi / 2, 3.0, -3.0} {
		q := QuaternionFromYaw(yaw)
		got, err := q.Yaw()
		require.NoError(t, err)
		assert.InDelta(t, yaw, got, tol)
	}
}

func TestQuaternionFromYawShape(t *testing.T) {
	want := Quaternion{Z: math.Sqrt2 / 2, W: math.Sqrt2 / 2}
	if diff := cmp.Diff(want, QuaternionFromYaw(math.Pi/2), cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Fatalf("quaternion mismatch (-want +got):\n%s", diff)
	}
}

func TestQuaternionYawUnnormalized(t *testing.T) {
	q := QuaternionFromYaw(1.0)
	q.Z *= 3
	q.W *= 3
	got, err := q.Yaw()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, tol)
}

func TestQuaternionDegenerate(t *testing.T) {
	_, err := Quaternion{}.Yaw()
	assert.ErrorIs(t, err, ErrDegenerateQuaternion)

	_, err = Quaternion{W: math.NaN()}.Yaw()
	assert.ErrorIs(t, err, ErrDegenerateQuaternion)
}
