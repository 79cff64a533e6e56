// Package skills implements the skill manifest: discovery of SKILL.md
// procedure files, deterministic keyword scoring for skill resolution,
// and an optional file watcher that republishes the manifest on change.
package skills

import (
	"fmt"
)

// MaxDescriptionLen bounds the frontmatter description field.
const MaxDescriptionLen = 1024

// Skill is a discovered procedure: frontmatter metadata plus the
// markdown body holding the instructions.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens and
	// underscores allowed).
	Name string `json:"name" yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `json:"description" yaml:"description"`

	// Keywords are the declared trigger terms, merged with terms
	// extracted from the body.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`

	// Tools hints which registered tools the skill expects.
	Tools []string `json:"tools,omitempty" yaml:"tools"`

	// Content is the markdown body holding the procedure.
	Content string `json:"-" yaml:"-"`

	// Path is the directory the skill was discovered in.
	Path string `json:"path" yaml:"-"`
}

// Summary is the lightweight form used in prompts and listings.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Summary returns the skill's lightweight form.
func (s *Skill) Summary() Summary {
	return Summary{Name: s.Name, Description: s.Description}
}

// Validate checks a parsed skill is usable.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	for _, r := range s.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			return fmt.Errorf("name must be lowercase alphanumeric with hyphens: got %q", s.Name)
		}
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLen)
	}
	return nil
}
