// Package preset rewrites pixel lengths in declaration values into viewport
// relative units, so layout authored for a fixed design resolution scales
// with actual viewport.
package preset

import (
	"regexp"
	"slices"

	"go.uber.org/zap"
)

// Name identifies preset to the host.
const Name = "px-to-viewport"

const (
	DefaultDesignWidth  = 1920
	DefaultDesignHeight = 1080
)

var (
	defaultKeyToVw = []string{
		"width",
		"padding-left",
		"padding-right",
		"margin-left",
		"margin-right",
		"left",
		"right",
		"column-gap",
	}
	defaultKeyToVh = []string{
		"height",
		"padding-top",
		"padding-bottom",
		"margin-top",
		"margin-bottom",
		"top",
		"bottom",
		"leading",
		"row-gap",
	}
	defaultKeyToBoth = []string{"padding", "margin", "gap"}
)

// pxPattern matches pixel tokens: optional minus, digits and dots, "px".
var pxPattern = regexp.MustCompile(`-?[.\d]+px`)

// DefaultKeyToVw returns copy of built-in list of properties converted to vw.
func DefaultKeyToVw() []string { return slices.Clone(defaultKeyToVw) }

// DefaultKeyToVh returns copy of built-in list of properties converted to vh.
func DefaultKeyToVh() []string { return slices.Clone(defaultKeyToVh) }

// DefaultKeyToBoth returns copy of built-in list of properties converted to
// "vh vw" pair.
func DefaultKeyToBoth() []string { return slices.Clone(defaultKeyToBoth) }

// Options configures preset. All fields are optional, zero values select
// defaults.
type Options struct {
	DesignWidth  float64  // reference width in pixels, 1920 when zero
	DesignHeight float64  // reference height in pixels, 1080 when zero
	KeyToVw      []string // properties converted to vw
	KeyToVh      []string // properties converted to vh
	KeyToBoth    []string // properties converted to "vh vw" pair
	// ReplaceKey selects whether key lists above replace built-in lists
	// instead of extending them. Empty list never replaces.
	ReplaceKey bool
}

// Entry is a single host declaration slot. Only string values are rewritten.
type Entry struct {
	Key   string
	Value any
}

// Util is what host hands to the post-processing hook.
type Util struct {
	Entries []Entry
}

// Postprocessor is implemented by anything host could call after it
// produced declarations. Hook works by mutating entries in place.
type Postprocessor interface {
	Postprocess(util *Util)
}

type keySet map[string]struct{}

func newKeySet(defaults, user []string, replace bool) keySet {
	keys := user
	if !replace {
		keys = append(slices.Clone(defaults), user...)
	} else if len(user) == 0 {
		keys = defaults
	}
	set := make(keySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (s keySet) has(key string) bool {
	_, ok := s[key]
	return ok
}

// Preset is configured transformation. It is immutable after creation and
// may be shared by concurrent callers working on distinct entries.
type Preset struct {
	log *zap.Logger

	designWidth  float64
	designHeight float64

	toVw   keySet
	toVh   keySet
	toBoth keySet
}

// New resolves options into classification tables. Design dimensions are not
// validated, non-positive values produce infinite or NaN percentages.
func New(opts Options, log *zap.Logger) *Preset {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Preset{
		log:          log.Named(Name),
		designWidth:  opts.DesignWidth,
		designHeight: opts.DesignHeight,
		toVw:         newKeySet(defaultKeyToVw, opts.KeyToVw, opts.ReplaceKey),
		toVh:         newKeySet(defaultKeyToVh, opts.KeyToVh, opts.ReplaceKey),
		toBoth:       newKeySet(defaultKeyToBoth, opts.KeyToBoth, opts.ReplaceKey),
	}
	if p.designWidth == 0 {
		p.designWidth = DefaultDesignWidth
	}
	if p.designHeight == 0 {
		p.designHeight = DefaultDesignHeight
	}

	p.log.Debug("Preset configured",
		zap.Float64("width", p.designWidth),
		zap.Float64("height", p.designHeight),
		zap.Int("vw", len(p.toVw)),
		zap.Int("vh", len(p.toVh)),
		zap.Int("both", len(p.toBoth)),
		zap.Bool("replace", opts.ReplaceKey))
	return p
}

// Name returns preset name.
func (p *Preset) Name() string {
	return Name
}

// DesignWidth returns effective reference width.
func (p *Preset) DesignWidth() float64 {
	return p.designWidth
}

// DesignHeight returns effective reference height.
func (p *Preset) DesignHeight() float64 {
	return p.designHeight
}

// Postprocess rewrites string values of entries in place. Entry order and
// count are preserved, non-string values are left alone.
func (p *Preset) Postprocess(util *Util) {
	if util == nil {
		return
	}
	var changed int
	for i := range util.Entries {
		e := &util.Entries[i]
		value, ok := e.Value.(string)
		if !ok {
			continue
		}
		if res := p.Rewrite(e.Key, value); res != value {
			e.Value = res
			changed++
		}
	}
	if changed > 0 {
		p.log.Debug("Values rewritten", zap.Int("entries", len(util.Entries)), zap.Int("changed", changed))
	}
}

// Rewrite applies conversion rules for key to a single value. When key
// belongs to several tables all rules apply in order vw, vh, both, each one
// working on result of the previous.
func (p *Preset) Rewrite(key, value string) string {
	if p.toVw.has(key) {
		value = replacePx(value, func(px float64) string {
			return Px2Vw(px, p.designWidth)
		})
	}
	if p.toVh.has(key) {
		value = replacePx(value, func(px float64) string {
			return Px2Vh(px, p.designHeight)
		})
	}
	if p.toBoth.has(key) {
		value = replacePx(value, func(px float64) string {
			return Px2Vh(px, p.designHeight) + " " + Px2Vw(px, p.designWidth)
		})
	}
	return value
}

func replacePx(value string, conv func(float64) string) string {
	return pxPattern.ReplaceAllStringFunc(value, func(token string) string {
		return conv(parseMagnitude(token[:len(token)-len("px")]))
	})
}
