package extract

import (
	"fmt"
	"strings"

	"github.com/hpungsan/facet/internal/persona"
)

// SystemPrompt tells the model which fields to return.
const SystemPrompt = `You are an expert persona analyst. Analyze the provided text blocks and links and extract structured information about the person they describe.

Return these fields:
- name: the person's full name
- age: stated or estimated age as a number, or null
- occupation: job title or professional role
- background: a 2-3 sentence summary of their background
- traits: array of personality traits (e.g. "analytical", "creative", "empathetic")
- interests: array of interests and hobbies
- skills: array of professional and technical skills
- values: array of core values and beliefs
- communication_style: brief description of how they communicate
- personality_type: MBTI, Enneagram or other framework if mentioned
- goals: array of stated goals or aspirations
- challenges: array of challenges or pain points
- relationships: array of key relationships or social connections

Return ONLY a valid JSON object with these keys. No markdown, no code fences, no commentary.
Use null for unknown scalar fields and empty arrays for unknown array fields.`

// blockSeparator sits between text blocks in the user message.
const blockSeparator = "\n\n---\n\n"

// BuildUserPrompt renders the input as the user message. The output depends
// only on the input, so identical inputs produce identical prompts.
func BuildUserPrompt(in persona.Input) string {
	var b strings.Builder

	blocks := make([]string, len(in.TextBlocks))
	for i, block := range in.TextBlocks {
		blocks[i] = fmt.Sprintf("Block %d:\n%s", i+1, block)
	}
	b.WriteString(strings.Join(blocks, blockSeparator))

	if len(in.Links) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Links:\n")
		for _, link := range in.Links {
			b.WriteString("- ")
			b.WriteString(link)
			b.WriteString("\n")
		}
		b.WriteString("\nLinks are not fetched; infer only what the URL itself reveals.")
	}

	return b.String()
}
