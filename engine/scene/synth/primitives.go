package synth

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type ray struct {
	orig mgl32.Vec3
	dir  mgl32.Vec3
}

func (r ray) at(t float32) mgl32.Vec3 {
	return r.orig.Add(r.dir.Mul(t))
}

type hitRecord struct {
	p      mgl32.Vec3
	normal mgl32.Vec3
	t      float32
	mat    Material
}

// setFaceNormal orients the normal against the incoming ray.
func (h *hitRecord) setFaceNormal(r ray, outward mgl32.Vec3) {
	if r.dir.Dot(outward) < 0 {
		h.normal = outward
	} else {
		h.normal = outward.Mul(-1)
	}
}

type hittable interface {
	hit(r ray, tMin, tMax float32, rec *hitRecord) bool
}

type sphere struct {
	center mgl32.Vec3
	radius float32
	mat    Material
}

func (s sphere) hit(r ray, tMin, tMax float32, rec *hitRecord) bool {
	oc := r.orig.Sub(s.center)
	a := r.dir.Dot(r.dir)
	halfB := oc.Dot(r.dir)
	c := oc.Dot(oc) - s.radius*s.radius
	disc := halfB*halfB - a*c
	if disc < 0 {
		return false
	}
	sqrtD := float32(math.Sqrt(float64(disc)))
	root := (-halfB - sqrtD) / a
	if root < tMin || root > tMax {
		root = (-halfB + sqrtD) / a
		if root < tMin || root > tMax {
			return false
		}
	}
	rec.t = root
	rec.p = r.at(root)
	rec.setFaceNormal(r, rec.p.Sub(s.center).Mul(1/s.radius))
	rec.mat = s.mat
	return true
}

// plane is an infinite plane through point.
type plane struct {
	point  mgl32.Vec3
	normal mgl32.Vec3
	mat    Material
}

func (p plane) hit(r ray, tMin, tMax float32, rec *hitRecord) bool {
	denom := p.normal.Dot(r.dir)
	if float32(math.Abs(float64(denom))) < 1e-6 {
		return false
	}
	t := p.point.Sub(r.orig).Dot(p.normal) / denom
	if t < tMin || t > tMax {
		return false
	}
	rec.t = t
	rec.p = r.at(t)
	rec.setFaceNormal(r, p.normal)
	rec.mat = p.mat
	return true
}

// box is an axis-aligned box between min and max.
type box struct {
	min, max mgl32.Vec3
	mat      Material
}

func (b box) hit(r ray, tMin, tMax float32, rec *hitRecord) bool {
	t0, t1 := tMin, tMax
	for i := 0; i < 3; i++ {
		invD := 1 / r.dir[i]
		tNear := (b.min[i] - r.orig[i]) * invD
		tFar := (b.max[i] - r.orig[i]) * invD
		if invD < 0 {
			tNear, tFar = tFar, tNear
		}
		t0 = max(t0, tNear)
		t1 = min(t1, tFar)
		if t1 <= t0 {
			return false
		}
	}

	rec.t = t0
	rec.p = r.at(t0)

	// Pick the face whose slab the hit point lies on.
	const eps = 1e-3
	var n mgl32.Vec3
	for i := 0; i < 3; i++ {
		if float32(math.Abs(float64(rec.p[i]-b.min[i]))) < eps {
			n[i] = -1
			break
		}
		if float32(math.Abs(float64(rec.p[i]-b.max[i]))) < eps {
			n[i] = 1
			break
		}
	}
	if n == (mgl32.Vec3{}) {
		n = r.dir.Mul(-1).Normalize()
	}
	rec.setFaceNormal(r, n)
	rec.mat = b.mat
	return true
}

// world is a flat list of primitives tested in order.
type world []hittable

func (w world) hit(r ray, tMin, tMax float32, rec *hitRecord) bool {
	found := false
	closest := tMax
	var tmp hitRecord
	for _, h := range w {
		if h.hit(r, tMin, closest, &tmp) {
			found = true
			closest = tmp.t
			*rec = tmp
		}
	}
	return found
}

// occluded reports whether anything lies on r within (tMin, tMax).
func (w world) occluded(r ray, tMin, tMax float32) bool {
	var tmp hitRecord
	for _, h := range w {
		if h.hit(r, tMin, tMax, &tmp) {
			return true
		}
	}
	return false
}
