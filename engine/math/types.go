package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Mat4 is a 4x4 matrix in column-major order, typically used to represent
// object transformations.
type Mat4 struct {
	Data [16]float32
}

// Vertex2D is the vertex record for 2D batched geometry (sprites, text).
type Vertex2D struct {
	Position Vec2
	Texcoord Vec2
	Colour   Vec4
}

// Vertex3D is the vertex record for static 3D meshes.
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
	Colour   Vec4
}

// ColorVertex3D is the vertex record for debug lines and triangles.
type ColorVertex3D struct {
	Position Vec3
	Colour   Vec4
}
