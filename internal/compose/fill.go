package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// DefaultBackground is used when a download asks for a flattened image
// without naming a background.
const DefaultBackground = "radial-gradient(circle, #fcdfa4 0%, #ffd83b 100%)"

// ErrInvalidFill is returned for backgrounds that cannot be parsed.
var ErrInvalidFill = errors.New("invalid background")

// Fill paints a background over the whole of dst.
type Fill interface {
	Paint(dst *image.RGBA)
}

// Solid is a single colour.
type Solid struct {
	Color color.NRGBA
}

func (s Solid) Paint(dst *image.RGBA) {
	b := dst.Bounds()
	c := color.RGBAModel.Convert(s.Color).(color.RGBA)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, c)
		}
	}
}

// LinearGradient runs left to right with its colours evenly spaced.
type LinearGradient struct {
	Colors []color.NRGBA
}

func (g LinearGradient) Paint(dst *image.RGBA) {
	b := dst.Bounds()
	w := float64(b.Dx())
	for x := b.Min.X; x < b.Max.X; x++ {
		c := interpolate(g.Colors, (float64(x-b.Min.X)+0.5)/w)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.SetRGBA(x, y, c)
		}
	}
}

// RadialGradient is centred with a radius of half the longer side.
type RadialGradient struct {
	Colors []color.NRGBA
}

func (g RadialGradient) Paint(dst *image.RGBA) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	cx, cy := w/2, h/2
	radius := math.Max(w, h) / 2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := float64(x-b.Min.X) + 0.5 - cx
			dy := float64(y-b.Min.Y) + 0.5 - cy
			dst.SetRGBA(x, y, interpolate(g.Colors, math.Hypot(dx, dy)/radius))
		}
	}
}

// interpolate picks the colour at t in [0,1] between evenly spaced stops.
func interpolate(stops []color.NRGBA, t float64) color.RGBA {
	if len(stops) == 1 {
		return color.RGBAModel.Convert(stops[0]).(color.RGBA)
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return color.RGBAModel.Convert(stops[len(stops)-1]).(color.RGBA)
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	mix := func(p, q uint8) uint8 {
		return uint8(math.Round(float64(p) + (float64(q)-float64(p))*f))
	}
	c := color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
	return color.RGBAModel.Convert(c).(color.RGBA)
}

var namedColors = map[string]color.NRGBA{
	"transparent": {},
	"black":       {A: 0xff},
	"white":       {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"red":         {R: 0xff, A: 0xff},
	"green":       {G: 0x80, A: 0xff},
	"blue":        {B: 0xff, A: 0xff},
	"yellow":      {R: 0xff, G: 0xff, A: 0xff},
	"orange":      {R: 0xff, G: 0xa5, A: 0xff},
	"gray":        {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"grey":        {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
}

// ParseFill parses a CSS background: a colour, linear-gradient(...) or
// radial-gradient(...). Gradient geometry arguments and stop offsets are
// ignored.
func ParseFill(css string) (Fill, error) {
	s := strings.TrimSpace(strings.ToLower(css))
	if s == "" {
		s = DefaultBackground
	}

	for _, kind := range []string{"linear-gradient", "radial-gradient"} {
		if !strings.HasPrefix(s, kind+"(") {
			continue
		}
		if !strings.HasSuffix(s, ")") {
			return nil, fmt.Errorf("%w: unterminated %s", ErrInvalidFill, kind)
		}
		colors, err := gradientColors(s[len(kind)+1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		if kind == "linear-gradient" {
			return LinearGradient{Colors: colors}, nil
		}
		return RadialGradient{Colors: colors}, nil
	}

	c, err := ParseColor(s)
	if err != nil {
		return nil, err
	}
	return Solid{Color: c}, nil
}

func gradientColors(args string) ([]color.NRGBA, error) {
	var colors []color.NRGBA
	for _, arg := range splitTopLevel(args) {
		c, err := ParseColor(colorToken(arg))
		if err != nil {
			// geometry such as "circle" or "180deg"
			continue
		}
		colors = append(colors, c)
	}
	if len(colors) == 0 {
		return nil, fmt.Errorf("%w: gradient has no colours", ErrInvalidFill)
	}
	return colors, nil
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// colorToken strips a trailing stop offset from a gradient argument.
func colorToken(arg string) string {
	if strings.HasPrefix(arg, "rgb") {
		if end := strings.IndexByte(arg, ')'); end >= 0 {
			return arg[:end+1]
		}
		return arg
	}
	if fields := strings.Fields(arg); len(fields) > 0 {
		return fields[0]
	}
	return arg
}

// ParseColor parses #rgb, #rrggbb, #rrggbbaa, rgb(), rgba() and a few names.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseRGB(s[5:len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseRGB(s[4:len(s)-1], false)
	}
	return color.NRGBA{}, fmt.Errorf("%w: unrecognised colour %q", ErrInvalidFill, s)
}

func parseHex(h string) (color.NRGBA, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: bad hex colour #%s", ErrInvalidFill, h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: bad hex colour #%s", ErrInvalidFill, h)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseRGB(body string, withAlpha bool) (color.NRGBA, error) {
	parts := strings.Split(body, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("%w: rgb needs 3 or 4 components", ErrInvalidFill)
	}
	if withAlpha && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("%w: rgba needs 4 components", ErrInvalidFill)
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return color.NRGBA{}, fmt.Errorf("%w: bad channel %q", ErrInvalidFill, parts[i])
		}
		ch[i] = uint8(n)
	}

	alpha := uint8(0xff)
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.NRGBA{}, fmt.Errorf("%w: bad alpha %q", ErrInvalidFill, parts[3])
		}
		alpha = uint8(math.Round(a * 255))
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, nil
}
