// Package palette blends per-category colours weighted by time spent into
// the weekly mood colour.
package palette

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Calculator maps categories to palette colours.
type Calculator struct {
	colors map[string]NamedColor
}

// NewCalculator builds a calculator from category -> colour name. Unknown
// colour names are ignored and their categories fall back to grey.
func NewCalculator(categoryColors map[string]string) *Calculator {
	colors := make(map[string]NamedColor, len(categoryColors))
	for category, name := range categoryColors {
		if c, ok := Lookup(name); ok {
			colors[category] = c
		}
	}
	return &Calculator{colors: colors}
}

// ColorOf returns the colour assigned to a category.
func (c *Calculator) ColorOf(category string) NamedColor {
	if c != nil {
		if named, ok := c.colors[category]; ok {
			return named
		}
	}
	return Fallback
}

// MainColor is the blended colour of a window.
type MainColor struct {
	// Category is the dominant category by minutes.
	Category string `json:"category"`
	Name     string `json:"name"`
	Hex      string `json:"hex"`
	// Exact reports whether the blend hit a palette entry exactly.
	Exact bool `json:"exact"`
	RGB   RGB  `json:"rgb"`
}

// Share is one category's contribution to the blend.
type Share struct {
	Category  string          `json:"category"`
	ColorName string          `json:"color_name"`
	Hex       string          `json:"hex"`
	Minutes   float64         `json:"minutes"`
	Percent   decimal.Decimal `json:"percent"`
}

// Result is the blend plus its weighted breakdown.
type Result struct {
	Main    MainColor `json:"main_color"`
	Palette []Share   `json:"color_palette"`
}

// Blend averages category colours in HSL space weighted by minutes. Hue uses
// a circular mean so red and magenta do not average to green.
func (c *Calculator) Blend(minutesByCategory map[string]float64) Result {
	shares := make([]Share, 0, len(minutesByCategory))
	var total float64
	for category, minutes := range minutesByCategory {
		if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
			continue
		}
		named := c.ColorOf(category)
		shares = append(shares, Share{
			Category:  category,
			ColorName: named.Name,
			Hex:       named.RGB.Hex(),
			Minutes:   minutes,
		})
		total += minutes
	}
	if total <= 0 {
		return Result{Main: MainColor{
			Name:  Fallback.Name,
			Hex:   Fallback.RGB.Hex(),
			Exact: true,
			RGB:   Fallback.RGB,
		}}
	}
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].Minutes != shares[j].Minutes {
			return shares[i].Minutes > shares[j].Minutes
		}
		return shares[i].Category < shares[j].Category
	})

	var x, y, sat, light float64
	totalDec := decimal.NewFromFloat(total)
	for i := range shares {
		w := shares[i].Minutes / total
		shares[i].Percent = decimal.NewFromFloat(shares[i].Minutes).Div(totalDec).Mul(decimal.NewFromInt(100)).Round(1)
		hc := toHSL(c.ColorOf(shares[i].Category).RGB)
		rad := hc.h * math.Pi / 180
		// greys carry no hue
		x += w * hc.s * math.Cos(rad)
		y += w * hc.s * math.Sin(rad)
		sat += w * hc.s
		light += w * hc.l
	}
	blended := hsl{s: sat, l: light}
	if math.Hypot(x, y) > 1e-9 {
		blended.h = math.Atan2(y, x) * 180 / math.Pi
		if blended.h < 0 {
			blended.h += 360
		}
	} else {
		blended.s = 0
	}
	rgb := fromHSL(blended)
	named, exact := Closest(rgb)
	return Result{
		Main: MainColor{
			Category: shares[0].Category,
			Name:     named.Name,
			Hex:      rgb.Hex(),
			Exact:    exact,
			RGB:      rgb,
		},
		Palette: shares,
	}
}

// PromptText renders the colour section of an image-generation prompt.
func (r Result) PromptText() string {
	var b strings.Builder
	if r.Main.Exact {
		fmt.Fprintf(&b, "主色调：%s（%s）", r.Main.Name, r.Main.Hex)
	} else {
		fmt.Fprintf(&b, "主色调：接近%s的颜色（%s）", r.Main.Name, r.Main.Hex)
	}
	if r.Main.Category != "" {
		fmt.Fprintf(&b, "，主要来自「%s」", r.Main.Category)
	}
	if len(r.Palette) > 0 {
		b.WriteString("\n色彩构成：")
		for i, share := range r.Palette {
			if i > 0 {
				b.WriteString("、")
			}
			fmt.Fprintf(&b, "%s %s%%（%s）", share.ColorName, share.Percent.StringFixed(1), share.Category)
		}
	}
	return b.String()
}
