// Package catalog holds the interview languages and the prompt templates
// used to generate and analyse interviews.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Language is one supported interview language.
type Language struct {
	Code      string `yaml:"code" json:"code"`
	Name      string `yaml:"name" json:"name"`
	SelfIntro string `yaml:"self_intro" json:"self_intro"`
	Strengths string `yaml:"strengths" json:"strengths"`
	// Custom marks a language code not in the catalogue.
	Custom bool `yaml:"-" json:"custom,omitempty"`
}

// Prompts are text/template sources.
type Prompts struct {
	QuestionSystem string `yaml:"question_system"`
	QuestionUser   string `yaml:"question_user"`
	AnalysisSystem string `yaml:"analysis_system"`
	AnalysisUser   string `yaml:"analysis_user"`
}

// Catalog is the loaded, validated catalogue.
type Catalog struct {
	DefaultLanguage string     `yaml:"default_language"`
	Languages       []Language `yaml:"languages"`
	Prompts         Prompts    `yaml:"prompts"`

	byCode    map[string]Language
	templates map[string]*template.Template
}

// QuestionPromptData feeds the question templates.
type QuestionPromptData struct {
	Language Language
	JobTitle string
	Resume   string
	Count    int
}

// AnalysisPromptData feeds the analysis templates.
type AnalysisPromptData struct {
	JobTitle   string
	Transcript string
}

// Load reads the catalogue at path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Default returns the embedded catalogue.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Languages) == 0 {
		return errors.New("at least one language is required")
	}
	c.byCode = make(map[string]Language, len(c.Languages))
	for i, l := range c.Languages {
		code := normalize(l.Code)
		switch {
		case code == "":
			return fmt.Errorf("language %d has no code", i)
		case l.Name == "":
			return fmt.Errorf("language %q has no name", code)
		case strings.TrimSpace(l.SelfIntro) == "":
			return fmt.Errorf("language %q has no self_intro", code)
		}
		if _, dup := c.byCode[code]; dup {
			return fmt.Errorf("language %q is listed twice", code)
		}
		l.Code = code
		c.Languages[i] = l
		c.byCode[code] = l
	}
	c.DefaultLanguage = normalize(c.DefaultLanguage)
	if _, ok := c.byCode[c.DefaultLanguage]; !ok {
		return fmt.Errorf("default_language %q is not a listed language", c.DefaultLanguage)
	}

	c.templates = make(map[string]*template.Template, 4)
	for name, src := range map[string]string{
		"question_system": c.Prompts.QuestionSystem,
		"question_user":   c.Prompts.QuestionUser,
		"analysis_system": c.Prompts.AnalysisSystem,
		"analysis_user":   c.Prompts.AnalysisUser,
	} {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("prompt %s is empty", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return fmt.Errorf("prompt %s: %w", name, err)
		}
		c.templates[name] = t
	}
	return nil
}

// Lookup returns the language for code. Unknown codes get a custom entry
// that borrows the default language's canned questions.
func (c *Catalog) Lookup(code string) Language {
	code = normalize(code)
	if code == "" {
		code = c.DefaultLanguage
	}
	if l, ok := c.byCode[code]; ok {
		return l
	}
	def := c.byCode[c.DefaultLanguage]
	return Language{
		Code:      code,
		Name:      strings.ToUpper(code) + " language",
		SelfIntro: def.SelfIntro,
		Strengths: def.Strengths,
		Custom:    true,
	}
}

// QuestionPrompt renders the system and user prompts for question generation.
func (c *Catalog) QuestionPrompt(d QuestionPromptData) (system, user string, err error) {
	if system, err = c.render("question_system", d); err != nil {
		return "", "", err
	}
	user, err = c.render("question_user", d)
	return system, user, err
}

// AnalysisPrompt renders the system and user prompts for interview analysis.
func (c *Catalog) AnalysisPrompt(d AnalysisPromptData) (system, user string, err error) {
	if system, err = c.render("analysis_system", d); err != nil {
		return "", "", err
	}
	user, err = c.render("analysis_user", d)
	return system, user, err
}

func (c *Catalog) render(name string, data any) (string, error) {
	var b strings.Builder
	if err := c.templates[name].Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
