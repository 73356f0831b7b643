package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template names
const (
	Question = "question"
	Evaluate = "evaluate"
	Feedback = "feedback"
	Face     = "face"
)

// PromptTemplate is one YAML template file
type PromptTemplate struct {
	Role         string `yaml:"role"`
	Instructions string `yaml:"instructions"`
	Output       string `yaml:"output"`
}

// PromptManager holds the compiled prompts keyed by template name
type PromptManager struct {
	prompts map[string]string
}

// NewPromptManager loads the embedded templates
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{
		prompts: make(map[string]string),
	}

	if err := pm.loadPrompts(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	return pm, nil
}

// BuildPrompt fills the named template with data. Placeholders look like {{.Key}}.
func (pm *PromptManager) BuildPrompt(name string, data map[string]string) (string, error) {
	prompt, exists := pm.prompts[name]
	if !exists {
		return "", fmt.Errorf("template not found: %s", name)
	}

	// one pass, so substituted values are never scanned for placeholders
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{."+k+"}}", v)
	}
	prompt = strings.NewReplacer(pairs...).Replace(prompt)

	return prompt, nil
}

// GetTemplates lists the loaded template names
func (pm *PromptManager) GetTemplates() []string {
	names := make([]string, 0, len(pm.prompts))
	for name := range pm.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (pm *PromptManager) loadPrompts() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var tmpl PromptTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}

		var sb strings.Builder
		for _, section := range []string{tmpl.Role, tmpl.Instructions, tmpl.Output} {
			section = strings.TrimSpace(section)
			if section == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(section)
		}

		pm.prompts[strings.TrimSuffix(entry.Name(), ".yaml")] = sb.String()
	}

	return nil
}
