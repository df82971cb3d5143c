package raster

import (
	"image"
	"image/color"
)

// 文档注释：source-over 合成
// 背景：以覆盖率为遮罩把纯色叠加到非预乘目标；覆盖为 0 的像素不动
func SourceOver(dst *image.NRGBA, cov *image.Alpha, c color.NRGBA) {
	b := dst.Bounds().Intersect(cov.Bounds())
	cr, cg, cb := float64(c.R), float64(c.G), float64(c.B)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		di := dst.PixOffset(b.Min.X, y)
		ci := cov.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			if m := cov.Pix[ci]; m != 0 {
				sa := float64(c.A) / 255 * float64(m) / 255
				da := float64(dst.Pix[di+3]) / 255
				keep := da * (1 - sa)
				oa := sa + keep
				if oa > 0 {
					p := dst.Pix[di : di+4 : di+4]
					p[0] = clamp8((cr*sa + float64(p[0])*keep) / oa)
					p[1] = clamp8((cg*sa + float64(p[1])*keep) / oa)
					p[2] = clamp8((cb*sa + float64(p[2])*keep) / oa)
					p[3] = clamp8(oa * 255)
				}
			}
			di += 4
			ci++
		}
	}
}

// DestinationOut：按覆盖率削减目标 alpha（destination-out），颜色分量不变
func DestinationOut(dst *image.NRGBA, cov *image.Alpha) {
	b := dst.Bounds().Intersect(cov.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		di := dst.PixOffset(b.Min.X, y)
		ci := cov.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			if m := cov.Pix[ci]; m != 0 {
				a := uint32(dst.Pix[di+3])
				dst.Pix[di+3] = uint8((a*(255-uint32(m)) + 127) / 255)
			}
			di += 4
			ci++
		}
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
