package persona

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultName is used when the model reports no usable name.
const DefaultName = "Unknown"

// Persona field limits. Normalize truncates to them; ValidatePersona rejects
// anything over them.
const (
	MaxNameLen       = 255
	MaxOccupationLen = 255
	MaxBackgroundLen = 10000
	MaxStyleLen      = 1000
	MaxAge           = 150

	MaxTagItems = 50
	MaxTagLen   = 100

	MaxNoteItems = 20
	MaxNoteLen   = 500
)

// Normalize builds a Persona from a decoded model response. Values are
// coerced to the declared types, unknown keys are dropped and every field is
// clipped to its limit. Metadata and raw data are taken from in.
func Normalize(raw map[string]any, in Input, now time.Time) *Persona {
	p := &Persona{
		Name:       clip(str(raw["name"]), MaxNameLen),
		Age:        age(raw["age"]),
		Occupation: optStr(raw["occupation"], MaxOccupationLen),
		Background: clip(str(raw["background"]), MaxBackgroundLen),

		Traits:    list(raw["traits"], MaxTagItems, MaxTagLen),
		Interests: list(raw["interests"], MaxTagItems, MaxTagLen),
		Skills:    list(raw["skills"], MaxTagItems, MaxTagLen),
		Values:    list(raw["values"], MaxTagItems, MaxTagLen),

		CommunicationStyle: optStr(raw["communication_style"], MaxStyleLen),
		PersonalityType:    optStr(raw["personality_type"], MaxStyleLen),

		Goals:         optList(raw["goals"], MaxNoteItems, MaxNoteLen),
		Challenges:    optList(raw["challenges"], MaxNoteItems, MaxNoteLen),
		Relationships: optList(raw["relationships"], MaxNoteItems, MaxNoteLen),

		Metadata: Origin{
			SourceTextBlocks: len(in.TextBlocks),
			SourceLinks:      len(in.Links),
			CreatedAt:        now.UTC(),
		},
		RawData: in.RawData(),
	}
	if p.Name == "" {
		p.Name = DefaultName
	}
	return p
}

// str coerces scalars to a trimmed string. Objects, arrays and null give "".
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func optStr(v any, max int) *string {
	s := clip(str(v), max)
	if s == "" {
		return nil
	}
	return &s
}

func age(v any) *int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || f < 0 || f > MaxAge {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

func list(v any, maxItems, maxLen int) []string {
	if out := optList(v, maxItems, maxLen); out != nil {
		return out
	}
	return []string{}
}

// optList returns nil when v is not an array, so absence survives.
func optList(v any, maxItems, maxLen int) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, min(len(items), maxItems))
	for _, item := range items {
		if len(out) == maxItems {
			break
		}
		if s := clip(str(item), maxLen); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if CountChars(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
