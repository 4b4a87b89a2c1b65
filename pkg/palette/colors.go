package palette

import (
	"fmt"
	"math"
	"strings"
)

// RGB is an 8-bit colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// NamedColor is one entry of the fixed palette.
type NamedColor struct {
	Name string
	RGB  RGB
}

// Named is the fixed palette categories are mapped onto.
var Named = []NamedColor{
	{Name: "午夜蓝", RGB: RGB{25, 25, 112}},
	{Name: "天蓝", RGB: RGB{135, 206, 235}},
	{Name: "砖红", RGB: RGB{178, 34, 34}},
	{Name: "玫红", RGB: RGB{199, 21, 133}},
	{Name: "墨绿", RGB: RGB{34, 85, 51}},
	{Name: "草绿", RGB: RGB{124, 185, 72}},
	{Name: "青绿", RGB: RGB{32, 178, 170}},
	{Name: "橙黄", RGB: RGB{255, 165, 0}},
	{Name: "米黄", RGB: RGB{245, 222, 179}},
	{Name: "紫罗兰", RGB: RGB{138, 43, 226}},
	{Name: "薰衣草", RGB: RGB{181, 126, 220}},
	{Name: "咖啡", RGB: RGB{111, 78, 55}},
	{Name: "石板灰", RGB: RGB{112, 128, 144}},
	{Name: "中性灰", RGB: RGB{128, 128, 128}},
}

// Fallback is used for unknown categories and empty windows.
var Fallback = NamedColor{Name: "中性灰", RGB: RGB{128, 128, 128}}

// Lookup finds a palette entry by name.
func Lookup(name string) (NamedColor, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Named {
		if c.Name == name {
			return c, true
		}
	}
	return NamedColor{}, false
}

type hsl struct {
	h float64 // degrees [0, 360)
	s float64
	l float64
}

func toHSL(c RGB) hsl {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	l := (maxC + minC) / 2
	if maxC == minC {
		return hsl{0, 0, l}
	}
	d := maxC - minC
	var s float64
	if l > 0.5 {
		s = d / (2 - maxC - minC)
	} else {
		s = d / (maxC + minC)
	}
	var h float64
	switch maxC {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return hsl{h, s, l}
}

func fromHSL(c hsl) RGB {
	if c.s == 0 {
		v := clampByte(c.l * 255)
		return RGB{v, v, v}
	}
	chroma := (1 - math.Abs(2*c.l-1)) * c.s
	hp := math.Mod(c.h, 360) / 60
	x := chroma * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = chroma, x, 0
	case hp < 2:
		r, g, b = x, chroma, 0
	case hp < 3:
		r, g, b = 0, chroma, x
	case hp < 4:
		r, g, b = 0, x, chroma
	case hp < 5:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}
	m := c.l - chroma/2
	return RGB{clampByte((r + m) * 255), clampByte((g + m) * 255), clampByte((b + m) * 255)}
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// distance weighs hue on the circle against saturation and lightness.
func distance(a, b hsl) float64 {
	dh := math.Abs(a.h - b.h)
	if dh > 180 {
		dh = 360 - dh
	}
	dh /= 180
	// hue is meaningless for near-grey colours
	hueWeight := math.Min(a.s, b.s)
	return math.Sqrt(hueWeight*dh*dh + (a.s-b.s)*(a.s-b.s) + (a.l-b.l)*(a.l-b.l))
}

// Closest returns the palette entry nearest to c in HSL space and whether it
// is an exact RGB match.
func Closest(c RGB) (NamedColor, bool) {
	target := toHSL(c)
	best := Fallback
	bestDist := math.Inf(1)
	for _, named := range Named {
		if named.RGB == c {
			return named, true
		}
		if d := distance(target, toHSL(named.RGB)); d < bestDist {
			best, bestDist = named, d
		}
	}
	return best, false
}
