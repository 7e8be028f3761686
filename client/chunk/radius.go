package chunk

// Radius calls visit once for every chunk position whose Euclidean distance
// to center is at most r. Positions are visited by increasing offset along
// the x axis, mirrored into all eight octants, so the order is stable for a
// given radius. A negative radius visits nothing.
func Radius(center Pos, r int32, visit func(Pos)) {
	if r < 0 {
		return
	}
	r2 := int64(r) * int64(r)
	for x := int64(0); x <= int64(r); x++ {
		for z := int64(0); z <= x; z++ {
			if x*x+z*z > r2 {
				break
			}
			octants(center, int32(x), int32(z), visit)
		}
	}
}

// octants visits the mirror images of the offset (x, z), 0 <= z <= x, without
// visiting a position twice where mirror images coincide.
func octants(c Pos, x, z int32, visit func(Pos)) {
	switch {
	case x == 0:
		visit(c)
	case z == 0:
		visit(Pos{c.X + x, c.Z})
		visit(Pos{c.X - x, c.Z})
		visit(Pos{c.X, c.Z + x})
		visit(Pos{c.X, c.Z - x})
	case z == x:
		visit(Pos{c.X + x, c.Z + x})
		visit(Pos{c.X - x, c.Z + x})
		visit(Pos{c.X + x, c.Z - x})
		visit(Pos{c.X - x, c.Z - x})
	default:
		visit(Pos{c.X + x, c.Z + z})
		visit(Pos{c.X - x, c.Z + z})
		visit(Pos{c.X + x, c.Z - z})
		visit(Pos{c.X - x, c.Z - z})
		visit(Pos{c.X + z, c.Z + x})
		visit(Pos{c.X - z, c.Z + x})
		visit(Pos{c.X + z, c.Z - x})
		visit(Pos{c.X - z, c.Z - x})
	}
}

// InRadius reports if p lies within r chunks of center, using the same
// distance as Radius.
func InRadius(center, p Pos, r int32) bool {
	if r < 0 {
		return false
	}
	dx, dz := int64(p.X)-int64(center.X), int64(p.Z)-int64(center.Z)
	return dx*dx+dz*dz <= int64(r)*int64(r)
}
