package persona

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

// Input limits.
const (
	MaxTextBlocks   = 50
	MaxTextBlockLen = 10000
	MaxLinks        = 50
	MaxLinkLen      = 2048
)

// Input is the content a persona is extracted from.
// Use NewInput so the caller's slices are not shared.
type Input struct {
	TextBlocks []string `json:"textBlocks" validate:"max=50,dive,max=10000"`
	Links      []string `json:"links" validate:"max=50,dive,required,http_url,max=2048"`
}

// NewInput copies blocks and links into a new Input.
func NewInput(textBlocks, links []string) Input {
	in := Input{
		TextBlocks: slices.Clone(textBlocks),
		Links:      slices.Clone(links),
	}
	if in.TextBlocks == nil {
		in.TextBlocks = []string{}
	}
	if in.Links == nil {
		in.Links = []string{}
	}
	return in
}

// RawData returns a verbatim copy of the input for embedding in a persona.
func (in Input) RawData() *RawData {
	return &RawData{
		TextBlocks: nonNil(slices.Clone(in.TextBlocks)),
		Links:      nonNil(slices.Clone(in.Links)),
	}
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates the prompt size of an input at four characters
// per token over the space-joined blocks and links.
func EstimateTokens(in Input) int {
	chars := CountChars(strings.Join(in.TextBlocks, " ")) + CountChars(strings.Join(in.Links, " "))
	return int(math.Ceil(float64(chars) / 4))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
