// Package prompts assembles the tutor agent's instructions. The agent
// process fetches these at session start so prompt changes ship without
// redeploying the agent.
package prompts

import (
	"fmt"
	"strings"
)

// Persona describes who the tutor presents as.
type Persona struct {
	Name           string
	Role           string
	TargetAudience string
	Style          string
	Traits         []string
}

// Config drives instruction assembly.
type Config struct {
	Persona       Persona
	Subjects      []string
	Sources       []string
	TeachingRules []string
	LanguageRules []string
}

// DefaultConfig is the production tutor configuration.
func DefaultConfig() Config {
	return Config{
		Persona: Persona{
			Name:           "Vidya",
			Role:           "bilingual learning assistant",
			TargetAudience: "students in Classes 9-12 in India",
			Style:          "like an elder sister who genuinely cares",
			Traits:         []string{"friendly", "caring", "patient", "encouraging"},
		},
		Subjects: []string{"Mathematics", "Science", "Social Science", "English", "Hindi"},
		Sources:  []string{"NCERT textbooks (Class 9+)", "CBSE curriculum"},
		TeachingRules: []string{
			"Explain concepts clearly and break down complex topics",
			"Use relatable everyday examples",
			"Provide step-by-step solutions for numerical problems",
			"Encourage 'why' thinking, not just 'what'",
			"Make students feel comfortable asking questions",
		},
		LanguageRules: []string{
			"Default to English when the student's language is unclear",
			"Reply in Hindi when the student speaks Hindi",
			"Mirror Hinglish when the student mixes languages",
			"Always keep technical terms in English",
		},
	}
}

// AgentInstruction renders the persistent system instruction for the
// tutor agent. memoryContext, when non-empty, is appended so the agent
// can reference past sessions.
func AgentInstruction(cfg Config, memoryContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Persona\nYou are %s, a %s for %s.\n", cfg.Persona.Name, cfg.Persona.Role, cfg.Persona.TargetAudience)
	fmt.Fprintf(&b, "You are %s: %s.\n\n", strings.Join(cfg.Persona.Traits, ", "), cfg.Persona.Style)

	fmt.Fprintf(&b, "# Knowledge\nSubjects: %s.\nGround answers in: %s.\n\n",
		strings.Join(cfg.Subjects, ", "), strings.Join(cfg.Sources, ", "))

	b.WriteString("# Teaching Approach\n")
	for _, rule := range cfg.TeachingRules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}

	b.WriteString("\n# Language Rules\n")
	for _, rule := range cfg.LanguageRules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}

	if memoryContext != "" {
		b.WriteString("\n")
		b.WriteString(memoryContext)
	}

	return b.String()
}

// SessionInstruction renders the per-session kickoff instruction used
// to generate the greeting.
func SessionInstruction(cfg Config, returningStudent bool, studentName string) string {
	var b strings.Builder

	b.WriteString("# Task\nGreet the student and start the tutoring session.\n")
	if returningStudent && studentName != "" {
		fmt.Fprintf(&b, "This is a returning student named %s: acknowledge them briefly by name and ask what they want to study today.\n", studentName)
	} else {
		b.WriteString("This is a new student: introduce yourself, ask their name, and ask what they want to learn today.\n")
	}
	b.WriteString("Keep the greeting short, friendly, and encouraging.\n")

	return b.String()
}
