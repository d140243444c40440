package geometry

import (
	"errors"
	"math"
)

var ErrDegenerateQuaternion = errors.New("geometry: degenerate quaternion")

// Quaternion is a rotation in x, y, z, w order, the layout used on the wire
// by the pose and transform messages.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// QuaternionFromYaw returns the rotation about +z by yaw (roll = pitch = 0).
func QuaternionFromYaw(yaw float64) Quaternion {
	sin, cos := math.Sincos(yaw / 2)
	return Quaternion{Z: sin, W: cos}
}

// Yaw extracts the rotation about +z from q. The quaternion does not need to
// be normalized; a zero-length or non-finite quaternion is rejected.
func (q Quaternion) Yaw() (float64, error) {
	n := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
	if n == 0 || !finite(n) {
		return 0, ErrDegenerateQuaternion
	}
	s := 2 / n
	// Rotation matrix entries r10 and r00.
	r10 := (q.X*q.Y + q.W*q.Z) * s
	r00 := 1 - (q.Y*q.Y+q.Z*q.Z)*s
	return math.Atan2(r10, r00), nil
}
