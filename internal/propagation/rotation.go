package propagation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is the perifocal-to-inertial direction-cosine matrix of the
// 3-1-3 sequence R3(-Ω)·R1(-i)·R3(-ω).
type RotationMatrix [3][3]float64

// NewRotationMatrix builds the DCM for the given RAAN, inclination and
// argument of periapsis (radians).
func NewRotationMatrix(raan, inclination, argPeriapsis float64) RotationMatrix {
	sO, cO := math.Sincos(raan)
	sI, cI := math.Sincos(inclination)
	sW, cW := math.Sincos(argPeriapsis)

	return RotationMatrix{
		{cO*cW - sO*sW*cI, -cO*sW - sO*cW*cI, sO * sI},
		{sO*cW + cO*sW*cI, -sO*sW + cO*cW*cI, -cO * sI},
		{sW * sI, cW * sI, cI},
	}
}

// Apply rotates v by m.
func (m RotationMatrix) Apply(v Vector3) Vector3 {
	return Vector3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Dense returns m as a gonum dense matrix.
func (m RotationMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Inverse returns the inverse of m, computed by LU factorization.
func (m RotationMatrix) Inverse() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		return nil, err
	}
	return &inv, nil
}

// OrthonormalityError returns max |(M·Mᵀ - I)ᵢⱼ|.
func (m RotationMatrix) OrthonormalityError() float64 {
	d := m.Dense()
	var prod mat.Dense
	prod.Mul(d, d.T())

	var worst float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if diff := math.Abs(prod.At(i, j) - want); diff > worst {
				worst = diff
			}
		}
	}
	return worst
}
