package math

import (
	"github.com/chewxy/math32"
)

func NewVec2(x, y float32) Vec2 {
	return Vec2{x, y}
}

func NewVec2Zero() Vec2 {
	return Vec2{}
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

func NewVec3Zero() Vec3 {
	return Vec3{}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// NewVec4One returns (1,1,1,1), the usual opaque-white colour.
func NewVec4One() Vec4 {
	return Vec4{1.0, 1.0, 1.0, 1.0}
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

func (v Vec2) MulScalar(s float32) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		v.X + other.X,
		v.Y + other.Y,
		v.Z + other.Z}
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		v.X - other.X,
		v.Y - other.Y,
		v.Z - other.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Length() float32 {
	return math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns a unit-length copy. The zero vector is returned
// unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.MulScalar(1.0 / l)
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X}
}

func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1.0
	m.Data[5] = 1.0
	m.Data[10] = 1.0
	m.Data[15] = 1.0
	return m
}

// NewMat4Orthographic builds an orthographic projection matrix, typically
// used to render flat or 2D scenes.
func NewMat4Orthographic(left, right, bottom, top, nearClip, farClip float32) Mat4 {
	outMatrix := NewMat4Identity()

	lr := 1.0 / (left - right)
	bt := 1.0 / (bottom - top)
	nf := 1.0 / (nearClip - farClip)

	outMatrix.Data[0] = -2.0 * lr
	outMatrix.Data[5] = -2.0 * bt
	outMatrix.Data[10] = 2.0 * nf

	outMatrix.Data[12] = (left + right) * lr
	outMatrix.Data[13] = (top + bottom) * bt
	outMatrix.Data[14] = (farClip + nearClip) * nf
	return outMatrix
}

// NewMat4Perspective builds a perspective projection matrix for 3D scenes.
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	halfTanFov := math32.Tan(fovRadians * 0.5)
	outMatrix := Mat4{}
	outMatrix.Data[0] = 1.0 / (aspectRatio * halfTanFov)
	outMatrix.Data[5] = 1.0 / halfTanFov
	outMatrix.Data[10] = -((farClip + nearClip) / (farClip - nearClip))
	outMatrix.Data[11] = -1.0
	outMatrix.Data[14] = -((2.0 * farClip * nearClip) / (farClip - nearClip))
	return outMatrix
}

// Mul multiplies m by other and returns the result.
func (m Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0.0)
			for i := 0; i < 4; i++ {
				sum += m.Data[i*4+col] * other.Data[row*4+i]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	outMatrix := NewMat4Identity()
	outMatrix.Data[12] = position.X
	outMatrix.Data[13] = position.Y
	outMatrix.Data[14] = position.Z
	return outMatrix
}
