package persona

import "strings"

const (
	StudentID      = "student"
	ProfessionalID = "professional"
)

// Persona captures the advisor profile a user picks before chatting.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	OpeningLine string   `json:"openingLine"`
}

// Seed provides the two personas the chatbot supports.
func Seed() []Persona {
	return []Persona{
		{
			ID:          StudentID,
			Name:        "Student",
			Title:       "I am a Student",
			Description: "Guidance on budgeting, saving, student loans, and building credit.",
			Topics:      []string{"budgeting", "saving", "credit", "student debt", "low-risk investing"},
			OpeningLine: welcomeLine("Student"),
		},
		{
			ID:          ProfessionalID,
			Name:        "Professional",
			Title:       "I am a Professional",
			Description: "Insights on investing, tax optimization, mortgages, and retirement planning.",
			Topics:      []string{"retirement planning", "tax optimization", "real estate", "portfolio management", "wealth-building"},
			OpeningLine: welcomeLine("Professional"),
		},
	}
}

func welcomeLine(name string) string {
	return "Hello! I'm your personal finance advisor. As a " + strings.ToLower(name) +
		", what financial questions do you have for me today? Feel free to ask about savings, investments, taxes, or even ask me to analyze your budget."
}
