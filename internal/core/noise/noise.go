// Package noise perturbs simulated poses with isotropic Gaussian error.
package noise

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zeusync/navsim/internal/core/geometry"
)

var ErrInvalidSigma = errors.New("noise: sigma must be a finite, non-negative number")

// Perturb adds three independent N(0, sigma²) samples to x, y and yaw, drawn
// from src in that order. sigma == 0 returns p without touching src.
func Perturb(p geometry.Pose2D, sigma float64, src rand.Source) geometry.Pose2D {
	if sigma == 0 {
		return p
	}
	n := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	p.X += n.Rand()
	p.Y += n.Rand()
	p.Yaw += n.Rand()
	return p
}

// Injector owns one random source for its lifetime so that a fixed seed
// reproduces the same error sequence. It is not safe for concurrent use.
type Injector struct {
	sigma float64
	seed  uint64
	src   rand.Source
}

// NewInjector returns an injector with standard deviation sigma. A zero seed
// draws one from the operating system.
func NewInjector(sigma float64, seed uint64) (*Injector, error) {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigma, sigma)
	}
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("noise: seeding from entropy: %w", err)
		}
		seed = binary.LittleEndian.Uint64(b[:]) | 1
	}
	return &Injector{
		sigma: sigma,
		seed:  seed,
		src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}, nil
}

func (i *Injector) Perturb(p geometry.Pose2D) geometry.Pose2D {
	return Perturb(p, i.sigma, i.src)
}

func (i *Injector) Sigma() float64 { return i.sigma }

// Seed is the seed actually in use, including a self-chosen one.
func (i *Injector) Seed() uint64 { return i.seed }
