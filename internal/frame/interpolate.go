package frame

// Interpolate33 bilinearly interpolates all three channels at (x, y). The caller
// guarantees 0 <= x < width-1 and 0 <= y < height-1.
func Interpolate33(s []Sample, x, y float32, width int) Sample {
	ix := int(x)
	iy := int(y)
	dx := x - float32(ix)
	dy := y - float32(iy)
	dxdy := dx * dy
	bp := ix + iy*width

	w11 := dxdy
	w01 := dy - dxdy
	w10 := dx - dxdy
	w00 := 1 - dx - dy + dxdy

	var out Sample
	for c := range 3 {
		out[c] = w11*s[bp+1+width][c] + w01*s[bp+width][c] + w10*s[bp+1][c] + w00*s[bp][c]
	}
	return out
}

// Interpolate31 bilinearly interpolates only the intensity channel at (x, y).
func Interpolate31(s []Sample, x, y float32, width int) float32 {
	ix := int(x)
	iy := int(y)
	dx := x - float32(ix)
	dy := y - float32(iy)
	dxdy := dx * dy
	bp := ix + iy*width
	return dxdy*s[bp+1+width][0] + (dy-dxdy)*s[bp+width][0] + (dx-dxdy)*s[bp+1][0] + (1-dx-dy+dxdy)*s[bp][0]
}
