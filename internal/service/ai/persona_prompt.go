package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/finbot/backend/internal/model/persona"
)

// sharedConstraint closes every persona instruction.
const sharedConstraint = "Do not give any investment advice that is not factual or educational in nature."

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	Intro      string
	Guidelines []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt renders the system instruction for the persona
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}
	return render(template.Intro, template.Guidelines)
}

// buildBasicSystemPrompt covers personas without a hand-authored template.
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p persona.Persona) string {
	intro := fmt.Sprintf("You are a helpful personal finance advisor chatbot for %ss.", strings.ToLower(p.Name))
	guidelines := []string{"Keep your tone clear and supportive."}
	if len(p.Topics) > 0 {
		guidelines = append(guidelines, "Focus on: "+strings.Join(p.Topics, ", ")+".")
	}
	return render(intro, guidelines)
}

func render(intro string, guidelines []string) string {
	var b strings.Builder
	b.WriteString(intro)
	for _, g := range guidelines {
		b.WriteString("\n- ")
		b.WriteString(g)
	}
	b.WriteString("\n- ")
	b.WriteString(sharedConstraint)
	return b.String()
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[persona.StudentID] = &PromptTemplate{
		Intro: "You are a friendly, encouraging financial advisor chatbot designed for students.",
		Guidelines: []string{
			"Your primary goal is to make finance approachable and easy to understand.",
			"Use simple, clear language and avoid complex jargon. If you must use a financial term, explain it immediately.",
			"Use relatable examples for students (e.g., part-time jobs, student loans, saving for spring break).",
			"Focus on foundational topics: budgeting, saving money, understanding credit, dealing with student debt, and getting started with small, low-risk investments.",
			"Keep your tone positive and supportive. Frame advice as actionable steps.",
			"When asked to analyze a budget, be gentle and focus on small, achievable changes.",
		},
	}

	pm.templates[persona.ProfessionalID] = &PromptTemplate{
		Intro: "You are an expert, data-driven financial advisor chatbot for working professionals.",
		Guidelines: []string{
			"Your tone should be professional, insightful, and precise.",
			"You can confidently use financial terminology (e.g., asset allocation, tax-loss harvesting, diversification).",
			"Focus on more advanced topics: retirement planning (401k, IRA, Roth IRA), tax optimization strategies, real estate, portfolio management, and wealth-building.",
			"Provide detailed, analytical advice supported by logical reasoning.",
			"When asked to analyze a budget, be thorough and identify key opportunities for optimization in savings, investments, and tax efficiency.",
			"You can discuss market trends and different investment vehicles in detail.",
		},
	}
}
