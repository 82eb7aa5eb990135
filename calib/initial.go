package calib

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"checkercal/pinhole"
)

// initIntrinsics derives a closed-form focal length estimate from the
// per-view homographies, fixing the principal point at the image center.
// With the principal point removed, the two image-of-the-absolute-conic
// constraints per homography become linear in (1/fx², 1/fy²).
func initIntrinsics(homs []*mat.Dense, width, height int) (pinhole.Intrinsics, error) {
	cx := (float64(width) - 1) / 2
	cy := (float64(height) - 1) / 2

	a := mat.NewDense(2*len(homs), 2, nil)
	b := mat.NewVecDense(2*len(homs), nil)
	for i, hom := range homs {
		// shift the principal point to the origin
		h := [3][2]float64{}
		for col := 0; col < 2; col++ {
			h[0][col] = hom.At(0, col) - cx*hom.At(2, col)
			h[1][col] = hom.At(1, col) - cy*hom.At(2, col)
			h[2][col] = hom.At(2, col)
		}
		a.SetRow(2*i, []float64{h[0][0] * h[0][1], h[1][0] * h[1][1]})
		b.SetVec(2*i, -h[2][0]*h[2][1])
		a.SetRow(2*i+1, []float64{h[0][0]*h[0][0] - h[0][1]*h[0][1], h[1][0]*h[1][0] - h[1][1]*h[1][1]})
		b.SetVec(2*i+1, -(h[2][0]*h[2][0] - h[2][1]*h[2][1]))
	}

	intr := pinhole.Intrinsics{Width: width, Height: height, Cx: cx, Cy: cy}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err == nil && sol.AtVec(0) > 0 && sol.AtVec(1) > 0 {
		intr.Fx = 1 / math.Sqrt(sol.AtVec(0))
		intr.Fy = 1 / math.Sqrt(sol.AtVec(1))
	} else {
		// near-degenerate view geometry; start from a generic focal length
		// and let the joint refinement pull it in
		f := 1.2 * math.Max(float64(width), float64(height))
		intr.Fx, intr.Fy = f, f
	}
	return intr, nil
}

// initExtrinsics recovers the board pose for one view from its homography
// and the intrinsic estimate: the first two columns of K⁻¹H are the first
// two rotation columns up to scale, the third column is the translation.
func initExtrinsics(intr pinhole.Intrinsics, hom *mat.Dense) (Pose, error) {
	kinv := mat.NewDense(3, 3, []float64{
		1 / intr.Fx, 0, -intr.Cx / intr.Fx,
		0, 1 / intr.Fy, -intr.Cy / intr.Fy,
		0, 0, 1,
	})
	var m mat.Dense
	m.Mul(kinv, hom)

	col := func(j int) r3.Vector {
		return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
	}
	m1, m2, m3 := col(0), col(1), col(2)
	n1, n2 := m1.Norm(), m2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return Pose{}, errors.New("degenerate homography: zero rotation column")
	}
	lambda := 2 / (n1 + n2)
	r1 := m1.Mul(lambda)
	r2 := m2.Mul(lambda)
	t := m3.Mul(lambda)
	if t.Z < 0 {
		// the board must sit in front of the camera
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	r3col := r1.Cross(r2)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3col.X,
		r1.Y, r2.Y, r3col.Y,
		r1.Z, r2.Z, r3col.Z,
	})
	rot, err := nearestRotation(approx)
	if err != nil {
		return Pose{}, err
	}
	return Pose{Rotation: RodriguesInverse(rot), Translation: t}, nil
}

// nearestRotation projects a near-rotation matrix onto SO(3) via SVD.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.New("rotation SVD failed to factorize")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the least-significant singular direction to stay in SO(3)
		d := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1})
		var uv mat.Dense
		uv.Mul(&u, d)
		r.Mul(&uv, v.T())
	}
	out := mat.NewDense(3, 3, nil)
	out.Copy(&r)
	return out, nil
}
