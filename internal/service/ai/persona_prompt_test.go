package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finbot/backend/internal/model/persona"
)

const studentInstruction = `You are a friendly, encouraging financial advisor chatbot designed for students.
- Your primary goal is to make finance approachable and easy to understand.
- Use simple, clear language and avoid complex jargon. If you must use a financial term, explain it immediately.
- Use relatable examples for students (e.g., part-time jobs, student loans, saving for spring break).
- Focus on foundational topics: budgeting, saving money, understanding credit, dealing with student debt, and getting started with small, low-risk investments.
- Keep your tone positive and supportive. Frame advice as actionable steps.
- When asked to analyze a budget, be gentle and focus on small, achievable changes.
- Do not give any investment advice that is not factual or educational in nature.`

func TestBuildSystemPromptStudent(t *testing.T) {
	pm := NewPersonaPromptManager()
	student, ok := persona.NewMemoryStore(persona.Seed()).FindByID(persona.StudentID)
	require.True(t, ok)

	assert.Equal(t, studentInstruction, pm.BuildSystemPrompt(student))
}

func TestBuildSystemPromptDistinctPerPersona(t *testing.T) {
	pm := NewPersonaPromptManager()
	seen := map[string]string{}
	for _, p := range persona.Seed() {
		prompt := pm.BuildSystemPrompt(p)
		assert.True(t, strings.HasSuffix(prompt, "\n- "+sharedConstraint), "persona %s", p.ID)
		for otherID, other := range seen {
			assert.NotEqual(t, other, prompt, "%s and %s share an instruction", p.ID, otherID)
		}
		seen[p.ID] = prompt
	}
	assert.Contains(t, seen[persona.ProfessionalID], "tax-loss harvesting")
}

func TestBuildSystemPromptFallback(t *testing.T) {
	pm := NewPersonaPromptManager()
	prompt := pm.BuildSystemPrompt(persona.Persona{ID: "retiree", Name: "Retiree", Topics: []string{"pensions"}})

	assert.Contains(t, prompt, "for retirees.")
	assert.Contains(t, prompt, "Focus on: pensions.")
	assert.True(t, strings.HasSuffix(prompt, sharedConstraint))

	_, err := pm.GetPromptTemplate("retiree")
	assert.Error(t, err)
}
