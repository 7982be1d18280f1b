package services

import (
	_ "embed"
	"fmt"
	"html"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// StepText is the wording of one step.
type StepText struct {
	Prompt      string `yaml:"prompt"`
	Placeholder string `yaml:"placeholder"`
}

// BranchStep is one task-type specific question.
type BranchStep struct {
	Step   models.Step `yaml:"step"`
	Prompt string      `yaml:"prompt"`
}

// Messages are the fixed notices sent outside of step prompts.
type Messages struct {
	Submitting      string `yaml:"submitting"`
	Submitted       string `yaml:"submitted"`
	FileFailures    string `yaml:"file_failures"`
	FilesCaptured   string `yaml:"files_captured"`
	Cancelled       string `yaml:"cancelled"`
	Restart         string `yaml:"restart"`
	GenericError    string `yaml:"generic_error"`
	ConnectionError string `yaml:"connection_error"`
	RateLimited     string `yaml:"rate_limited"`
	BadRequest      string `yaml:"bad_request"`
	Unavailable     string `yaml:"unavailable"`
}

// ColumnMapping maps result fields to board column ids. Empty ids are skipped.
type ColumnMapping struct {
	ArticleLink string `yaml:"article_link"`
	RequestType string `yaml:"request_type"`
	Description string `yaml:"description"`
	Attachments string `yaml:"attachments"`
	Requestor   string `yaml:"requestor"`
	Urgency     string `yaml:"urgency"`
	Priority    string `yaml:"priority"`
	Product     string `yaml:"product"`
}

// Catalog holds the conversation wording, task-type branches and board mapping.
type Catalog struct {
	Steps    map[models.Step]StepText `yaml:"steps"`
	Branches map[string][]BranchStep  `yaml:"branches"`
	Messages Messages                 `yaml:"messages"`
	Columns  ColumnMapping            `yaml:"columns"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for _, step := range []models.Step{
		models.StepSubject, models.StepTaskType, models.StepPriority, models.StepProduct,
		models.StepSupportingMaterials, models.StepFiles, models.StepSubmit,
	} {
		if strings.TrimSpace(c.Steps[step].Prompt) == "" {
			return fmt.Errorf("catalog: missing prompt for step %q", step)
		}
	}

	for _, taskType := range models.TaskTypes {
		branch, ok := c.Branches[taskType]
		if !ok || len(branch) == 0 {
			return fmt.Errorf("catalog: missing branch for task type %q", taskType)
		}
		seen := map[models.Step]bool{}
		for _, b := range branch {
			if b.Step != models.StepDescription && b.Step != models.StepKBURLs {
				return fmt.Errorf("catalog: task type %q: step %q cannot be branched", taskType, b.Step)
			}
			if seen[b.Step] {
				return fmt.Errorf("catalog: task type %q: step %q listed twice", taskType, b.Step)
			}
			if strings.TrimSpace(b.Prompt) == "" {
				return fmt.Errorf("catalog: task type %q: missing prompt for %q", taskType, b.Step)
			}
			seen[b.Step] = true
		}
		if !seen[models.StepDescription] {
			return fmt.Errorf("catalog: task type %q never asks for a description", taskType)
		}
	}
	return nil
}

// Branch returns the task-type specific steps, in order.
func (c *Catalog) Branch(taskType string) []models.Step {
	branch := c.Branches[taskType]
	steps := make([]models.Step, len(branch))
	for i, b := range branch {
		steps[i] = b.Step
	}
	return steps
}

// Prompt returns the question for step, using the branch wording when step
// belongs to taskType's branch.
func (c *Catalog) Prompt(step models.Step, taskType string) StepText {
	for _, b := range c.Branches[taskType] {
		if b.Step == step {
			return StepText{Prompt: b.Prompt}
		}
	}
	return c.Steps[step]
}

// ColumnValues builds the board column payload for a submission. Answers are
// stored escaped for chat rendering and are unescaped here.
func (c *Catalog) ColumnValues(r *models.SubmissionResult) map[string]any {
	cols := map[string]any{}
	set := func(id string, v any) {
		if id != "" {
			cols[id] = v
		}
	}

	if r.ArticleLink != "" {
		set(c.Columns.ArticleLink, map[string]string{"url": r.ArticleLink, "text": "KB Article"})
	}
	set(c.Columns.RequestType, map[string]string{"label": r.RequestType})
	set(c.Columns.Description, map[string]string{"text": describe(r)})
	set(c.Columns.Requestor, r.UserID)
	set(c.Columns.Urgency, map[string]string{"label": r.UrgencyLevel})
	set(c.Columns.Priority, map[string]string{"label": r.Priority})
	set(c.Columns.Product, html.UnescapeString(r.Product))
	return cols
}

func describe(r *models.SubmissionResult) string {
	var b strings.Builder
	b.WriteString(r.ChangeDescription)
	if r.KBURLs != "" {
		b.WriteString("\n\nKB URLs:\n")
		b.WriteString(r.KBURLs)
	}
	if r.SupportingMaterials != "" {
		b.WriteString("\n\nSupporting Materials:\n")
		b.WriteString(r.SupportingMaterials)
	}
	return html.UnescapeString(b.String())
}
