package timer

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Settings holds the per-tier time-extension policy plus the cosmetic
// display parameters that overlays render with. Cosmetic fields have no
// effect on the countdown; they exist to be broadcast to observers.
type Settings struct {
	RegularSubTime int `json:"regularSubTime" yaml:"regular_sub_time"`
	Tier2SubTime   int `json:"tier2SubTime" yaml:"tier2_sub_time"`
	Tier3SubTime   int `json:"tier3SubTime" yaml:"tier3_sub_time"`
	PrimeSubTime   int `json:"primeSubTime" yaml:"prime_sub_time"`
	GiftSubTime    int `json:"giftSubTime" yaml:"gift_sub_time"`

	TimerSize          float64 `json:"timerSize" yaml:"timer_size"`
	TimerColor         string  `json:"timerColor" yaml:"timer_color"`
	TimerFont          string  `json:"timerFont" yaml:"timer_font"`
	TimerShadowColor   string  `json:"timerShadowColor" yaml:"timer_shadow_color"`
	TimerShadowBlur    float64 `json:"timerShadowBlur" yaml:"timer_shadow_blur"`
	TimerShadowOpacity float64 `json:"timerShadowOpacity" yaml:"timer_shadow_opacity"`
	TimerShadowX       float64 `json:"timerShadowX" yaml:"timer_shadow_x"`
	TimerShadowY       float64 `json:"timerShadowY" yaml:"timer_shadow_y"`
}

// DefaultSettings returns the policy used when no snapshot or config
// overrides exist.
func DefaultSettings() Settings {
	return Settings{
		RegularSubTime:     300,
		Tier2SubTime:       600,
		Tier3SubTime:       900,
		PrimeSubTime:       300,
		GiftSubTime:        300,
		TimerSize:          48,
		TimerColor:         "#ffffff",
		TimerFont:          "Arial",
		TimerShadowColor:   "#000000",
		TimerShadowBlur:    8,
		TimerShadowOpacity: 0.8,
		TimerShadowX:       2,
		TimerShadowY:       2,
	}
}

// Style is the cosmetic subset broadcast on timer_style_update.
type Style struct {
	Color         string  `json:"color"`
	Font          string  `json:"font"`
	ShadowColor   string  `json:"shadowColor"`
	ShadowBlur    float64 `json:"shadowBlur"`
	ShadowOpacity float64 `json:"shadowOpacity"`
	ShadowX       float64 `json:"shadowX"`
	ShadowY       float64 `json:"shadowY"`
}

// Style extracts the cosmetic fields that travel on timer_style_update.
func (s Settings) Style() Style {
	return Style{
		Color:         s.TimerColor,
		Font:          s.TimerFont,
		ShadowColor:   s.TimerShadowColor,
		ShadowBlur:    s.TimerShadowBlur,
		ShadowOpacity: s.TimerShadowOpacity,
		ShadowX:       s.TimerShadowX,
		ShadowY:       s.TimerShadowY,
	}
}

type fieldKind int

const (
	fieldSeconds fieldKind = iota // non-negative whole seconds
	fieldNumber                   // non-negative finite number
	fieldString
	fieldUnit // number bounded to [0,1]
)

// settingsField is a declarative validator for one settings key: the value
// kind it accepts and how a valid value lands on the struct. Validation is
// per field; invalid fields are dropped without failing the update.
type settingsField struct {
	kind     fieldKind
	cosmetic bool
	size     bool
	apply    func(s *Settings, num float64, str string)
}

var settingsFields = map[string]settingsField{
	"regularSubTime": {kind: fieldSeconds, apply: func(s *Settings, n float64, _ string) { s.RegularSubTime = int(n) }},
	"tier2SubTime":   {kind: fieldSeconds, apply: func(s *Settings, n float64, _ string) { s.Tier2SubTime = int(n) }},
	"tier3SubTime":   {kind: fieldSeconds, apply: func(s *Settings, n float64, _ string) { s.Tier3SubTime = int(n) }},
	"primeSubTime":   {kind: fieldSeconds, apply: func(s *Settings, n float64, _ string) { s.PrimeSubTime = int(n) }},
	"giftSubTime":    {kind: fieldSeconds, apply: func(s *Settings, n float64, _ string) { s.GiftSubTime = int(n) }},

	"timerSize":          {kind: fieldNumber, size: true, apply: func(s *Settings, n float64, _ string) { s.TimerSize = n }},
	"timerColor":         {kind: fieldString, cosmetic: true, apply: func(s *Settings, _ float64, v string) { s.TimerColor = v }},
	"timerFont":          {kind: fieldString, cosmetic: true, apply: func(s *Settings, _ float64, v string) { s.TimerFont = v }},
	"timerShadowColor":   {kind: fieldString, cosmetic: true, apply: func(s *Settings, _ float64, v string) { s.TimerShadowColor = v }},
	"timerShadowBlur":    {kind: fieldNumber, cosmetic: true, apply: func(s *Settings, n float64, _ string) { s.TimerShadowBlur = n }},
	"timerShadowOpacity": {kind: fieldUnit, cosmetic: true, apply: func(s *Settings, n float64, _ string) { s.TimerShadowOpacity = n }},
	"timerShadowX":       {kind: fieldNumber, cosmetic: true, apply: func(s *Settings, n float64, _ string) { s.TimerShadowX = n }},
	"timerShadowY":       {kind: fieldNumber, cosmetic: true, apply: func(s *Settings, n float64, _ string) { s.TimerShadowY = n }},
}

// applyPartial merges the valid fields of a partial update into s and
// reports whether any cosmetic style field or the size changed. Unknown
// keys and values that fail their field rule are skipped.
func applyPartial(s *Settings, partial map[string]any) (styleChanged, sizeChanged bool) {
	for key, raw := range partial {
		field, ok := settingsFields[key]
		if !ok {
			log.Debug().Str("field", key).Msg("ignoring unknown settings field")
			continue
		}

		switch field.kind {
		case fieldString:
			str, ok := raw.(string)
			if !ok {
				log.Warn().Str("field", key).Msg("ignoring settings field: expected string")
				continue
			}
			field.apply(s, 0, str)
		default:
			num, ok := numericValue(raw)
			if !ok || !validRange(field.kind, num) {
				log.Warn().Str("field", key).Interface("value", raw).Msg("ignoring settings field: invalid value")
				continue
			}
			if field.kind == fieldSeconds {
				num = math.Floor(num)
			}
			field.apply(s, num, "")
		}

		if field.cosmetic {
			styleChanged = true
		}
		if field.size {
			sizeChanged = true
		}
	}
	return styleChanged, sizeChanged
}

func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func validRange(kind fieldKind, n float64) bool {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return false
	}
	if kind == fieldUnit && n > 1 {
		return false
	}
	return true
}
