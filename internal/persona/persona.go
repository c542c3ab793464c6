package persona

import (
	"slices"
	"time"
)

// Persona is the structured record extracted from text blocks and links.
type Persona struct {
	// ID is assigned on save; empty for freshly extracted personas
	ID string `json:"id,omitempty"`

	Name       string  `json:"name" validate:"required,max=255"`
	Age        *int    `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Occupation *string `json:"occupation,omitempty" validate:"omitempty,max=255"`
	Background string  `json:"background" validate:"max=10000"`

	Traits    []string `json:"traits" validate:"max=50,dive,max=100"`
	Interests []string `json:"interests" validate:"max=50,dive,max=100"`
	Skills    []string `json:"skills" validate:"max=50,dive,max=100"`
	Values    []string `json:"values" validate:"max=50,dive,max=100"`

	CommunicationStyle *string `json:"communication_style,omitempty" validate:"omitempty,max=1000"`
	PersonalityType    *string `json:"personality_type,omitempty" validate:"omitempty,max=1000"`

	// Goals, Challenges and Relationships are nil when the model did not
	// report them; a non-nil empty slice means "reported, none".
	Goals         []string `json:"goals" validate:"omitempty,max=20,dive,max=500"`
	Challenges    []string `json:"challenges" validate:"omitempty,max=20,dive,max=500"`
	Relationships []string `json:"relationships" validate:"omitempty,max=20,dive,max=500"`

	Metadata Origin   `json:"metadata"`
	RawData  *RawData `json:"raw_data,omitempty"`
}

// Origin records what an extraction was built from.
type Origin struct {
	SourceTextBlocks int       `json:"source_text_blocks"`
	SourceLinks      int       `json:"source_links"`
	CreatedAt        time.Time `json:"created_at"`
}

// RawData echoes the extraction input verbatim.
type RawData struct {
	TextBlocks []string `json:"textBlocks"`
	Links      []string `json:"links"`
}

// Metadata is the side record stored next to each persisted persona.
// It is what list operations read; the payload is only loaded for names.
type Metadata struct {
	PersonaID        string    `json:"persona_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	SourceTextBlocks int       `json:"source_text_blocks"`
	SourceLinks      int       `json:"source_links"`
	FileSize         int64     `json:"file_size"`
	Checksum         string    `json:"checksum,omitempty"`
}

// Summary is a persona list entry.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of p.
func (p *Persona) Clone() *Persona {
	if p == nil {
		return nil
	}
	c := *p
	c.Age = clonePtr(p.Age)
	c.Occupation = clonePtr(p.Occupation)
	c.CommunicationStyle = clonePtr(p.CommunicationStyle)
	c.PersonalityType = clonePtr(p.PersonalityType)
	c.Traits = slices.Clone(p.Traits)
	c.Interests = slices.Clone(p.Interests)
	c.Skills = slices.Clone(p.Skills)
	c.Values = slices.Clone(p.Values)
	c.Goals = slices.Clone(p.Goals)
	c.Challenges = slices.Clone(p.Challenges)
	c.Relationships = slices.Clone(p.Relationships)
	if p.RawData != nil {
		c.RawData = &RawData{
			TextBlocks: slices.Clone(p.RawData.TextBlocks),
			Links:      slices.Clone(p.RawData.Links),
		}
	}
	return &c
}

// FillDefaults replaces nil required lists with empty ones and a blank name
// with "Unknown", so stored payloads always carry the same shape.
func (p *Persona) FillDefaults() {
	if p.Name == "" {
		p.Name = DefaultName
	}
	for _, s := range []*[]string{&p.Traits, &p.Interests, &p.Skills, &p.Values} {
		if *s == nil {
			*s = []string{}
		}
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
