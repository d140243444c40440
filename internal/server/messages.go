package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/sim"
)

// Wire messages follow the field layout of the ROS geometry_msgs and
// nav_msgs types so that existing tooling can read them.

type Header struct {
	Seq     uint64    `json:"seq,omitempty"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Vector3 = Point

type Pose struct {
	Position    Point               `json:"position"`
	Orientation geometry.Quaternion `json:"orientation"`
}

type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

type Transform struct {
	Translation Vector3             `json:"translation"`
	Rotation    geometry.Quaternion `json:"rotation"`
}

type TransformStamped struct {
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"child_frame_id"`
	Transform    Transform `json:"transform"`
}

type Path struct {
	Header Header        `json:"header"`
	Poses  []PoseStamped `json:"poses"`
}

type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// PoseWithCovariance carries a covariance for compatibility; it is ignored.
type PoseWithCovariance struct {
	Pose       Pose      `json:"pose"`
	Covariance []float64 `json:"covariance,omitempty"`
}

type PoseWithCovarianceStamped struct {
	Header Header             `json:"header"`
	Pose   PoseWithCovariance `json:"pose"`
}

// FrameMessage is the published form of one tick.
type FrameMessage struct {
	Seq          uint64             `json:"seq"`
	Stamp        time.Time          `json:"stamp"`
	DT           float64            `json:"dt"`
	Pose         PoseStamped        `json:"pose"`
	Velocity     Twist              `json:"velocity"`
	Command      Twist              `json:"command"`
	Observations []sim.Observation  `json:"observations"`
	Transforms   []TransformStamped `json:"transforms"`
	Path         Path               `json:"path"`
}

// Velocity reads the planar part of a twist: linear x and angular z.
func (t Twist) Velocity() geometry.Velocity2D {
	return geometry.Velocity2D{Linear: t.Linear.X, Angular: t.Angular.Z}
}

func TwistFromVelocity(v geometry.Velocity2D) Twist {
	return Twist{Linear: Vector3{X: v.Linear}, Angular: Vector3{Z: v.Angular}}
}

// Pose2D projects the message onto the plane. z and the covariance are
// dropped; the yaw comes from the orientation quaternion.
func (m PoseWithCovarianceStamped) Pose2D() (geometry.Pose2D, error) {
	yaw, err := m.Pose.Pose.Orientation.Yaw()
	if err != nil {
		return geometry.Pose2D{}, fmt.Errorf("%w: orientation: %w", ErrInvalidMessage, err)
	}
	return geometry.Pose2D{
		X:   m.Pose.Pose.Position.X,
		Y:   m.Pose.Pose.Position.Y,
		Yaw: yaw,
	}, nil
}

func PoseFromPose2D(p geometry.Pose2D) Pose {
	return Pose{
		Position:    Point{X: p.X, Y: p.Y},
		Orientation: geometry.QuaternionFromYaw(p.Yaw),
	}
}

func NewFrameMessage(f sim.Frame) FrameMessage {
	msg := FrameMessage{
		Seq:   f.Seq,
		Stamp: f.Stamp,
		DT:    f.DT,
		Pose: PoseStamped{
			Header: Header{Seq: f.Seq, Stamp: f.Stamp, FrameID: f.WorldFrame},
			Pose:   PoseFromPose2D(f.Pose),
		},
		Velocity:     TwistFromVelocity(f.Velocity),
		Command:      TwistFromVelocity(f.Command),
		Observations: f.Observations,
		Transforms:   make([]TransformStamped, 0, len(f.Transforms)),
		Path: Path{
			Header: Header{Seq: f.Seq, Stamp: f.Stamp, FrameID: f.RobotFrame},
			Poses:  make([]PoseStamped, 0, len(f.Path)),
		},
	}
	if msg.Observations == nil {
		msg.Observations = []sim.Observation{}
	}

	for _, tf := range f.Transforms {
		pose := PoseFromPose2D(tf.Pose)
		msg.Transforms = append(msg.Transforms, TransformStamped{
			Header:       Header{Stamp: f.Stamp, FrameID: tf.Parent},
			ChildFrameID: tf.Child,
			Transform:    Transform{Translation: pose.Position, Rotation: pose.Orientation},
		})
	}
	for _, pt := range f.Path {
		msg.Path.Poses = append(msg.Path.Poses, PoseStamped{
			Header: Header{Stamp: f.Stamp, FrameID: f.RobotFrame},
			Pose:   PoseFromPose2D(geometry.Pose2D{X: pt.X, Y: pt.Y}),
		})
	}
	return msg
}

// Envelope types exchanged on the WebSocket feed.
const (
	TypeFrame       = "frame"
	TypeCmdVel      = "cmd_vel"
	TypeInitialPose = "initialpose"
	TypeError       = "error"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

func newEnvelope(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: raw})
}
