package palette

import (
	"strings"
	"testing"
)

func testCalculator() *Calculator {
	return NewCalculator(map[string]string{
		"工作": "砖红",
		"娱乐": "玫红",
		"睡眠": "午夜蓝",
		"学习": "不存在的颜色",
	})
}

func TestBlendEmptyWindowIsGrey(t *testing.T) {
	for _, input := range []map[string]float64{nil, {}, {"工作": 0}} {
		res := testCalculator().Blend(input)
		if res.Main.Name != Fallback.Name || res.Main.RGB != Fallback.RGB {
			t.Fatalf("expected grey default for %v, got %+v", input, res.Main)
		}
		if len(res.Palette) != 0 {
			t.Fatalf("expected empty palette, got %+v", res.Palette)
		}
	}
}

func TestBlendSingleCategoryKeepsColor(t *testing.T) {
	res := testCalculator().Blend(map[string]float64{"睡眠": 420})
	if res.Main.Name != "午夜蓝" || res.Main.Category != "睡眠" {
		t.Fatalf("unexpected main colour %+v", res.Main)
	}
	if len(res.Palette) != 1 || res.Palette[0].Percent.String() != "100" {
		t.Fatalf("unexpected palette %+v", res.Palette)
	}
}

func TestBlendCircularHueMean(t *testing.T) {
	res := testCalculator().Blend(map[string]float64{"工作": 300, "娱乐": 300})
	h := toHSL(res.Main.RGB).h
	if h > 30 && h < 300 {
		t.Fatalf("red and magenta must blend towards red, got hue %.1f (%s)", h, res.Main.Hex)
	}
}

func TestBlendDominantAndFallback(t *testing.T) {
	res := testCalculator().Blend(map[string]float64{"工作": 100, "学习": 300, "未知": 50})
	if res.Main.Category != "学习" {
		t.Fatalf("expected dominant category 学习, got %s", res.Main.Category)
	}
	if res.Palette[0].ColorName != Fallback.Name {
		t.Fatalf("unknown colour name must fall back to grey, got %s", res.Palette[0].ColorName)
	}
	if res.Palette[2].Category != "未知" {
		t.Fatalf("expected shares sorted by minutes, got %+v", res.Palette)
	}
}

func TestClosestExactAndNearest(t *testing.T) {
	named, exact := Closest(RGB{178, 34, 34})
	if !exact || named.Name != "砖红" {
		t.Fatalf("expected exact 砖红, got %s exact=%v", named.Name, exact)
	}
	named, exact = Closest(RGB{180, 30, 40})
	if exact || named.Name != "砖红" {
		t.Fatalf("expected nearest 砖红, got %s exact=%v", named.Name, exact)
	}
}

func TestHSLRoundTrip(t *testing.T) {
	for _, c := range Named {
		got := fromHSL(toHSL(c.RGB))
		if got != c.RGB {
			t.Fatalf("round trip of %s: %v != %v", c.Name, got, c.RGB)
		}
	}
}

func TestPromptText(t *testing.T) {
	res := testCalculator().Blend(map[string]float64{"睡眠": 300, "工作": 100})
	text := res.PromptText()
	if !strings.Contains(text, "主色调") || !strings.Contains(text, "午夜蓝 75.0%（睡眠）") {
		t.Fatalf("unexpected prompt text %q", text)
	}
}
