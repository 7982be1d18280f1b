package validation

import (
	"html"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// Bounds for each request field.
var (
	SubjectOptions             = TextOptions{MinLength: 3, MaxLength: 200, Required: true}
	ProductOptions             = TextOptions{MinLength: 2, MaxLength: 100, Required: true}
	DescriptionOptions         = TextOptions{MinLength: 10, MaxLength: 5000, Required: true}
	SupportingMaterialsOptions = TextOptions{MaxLength: 2000}
)

// KBURLsMaxLength bounds the raw KB URL answer.
const KBURLsMaxLength = 2000

// Display labels used in validation messages.
const (
	LabelSubject             = "Subject"
	LabelTaskType            = "Task Type"
	LabelPriority            = "Priority"
	LabelProduct             = "Product"
	LabelDescription         = "Description"
	LabelKBURLs              = "KB URLs"
	LabelSupportingMaterials = "Supporting Materials"
)

// ValidateRequest checks the complete accumulated answers against the full schema.
// Values already escaped by per-step validation are unescaped first so they are
// not escaped twice.
func ValidateRequest(fields map[string]string, files []string) (*models.KBRequest, error) {
	get := func(key string) string {
		return html.UnescapeString(fields[key])
	}

	var (
		req models.KBRequest
		err error
	)

	if req.Subject, err = ValidateText(get(models.FieldSubject), LabelSubject, SubjectOptions); err != nil {
		return nil, err
	}
	if req.TaskType, err = ValidateEnum(get(models.FieldTaskType), LabelTaskType, models.TaskTypes); err != nil {
		return nil, err
	}
	if req.Priority, err = ValidateEnum(get(models.FieldPriority), LabelPriority, models.Priorities); err != nil {
		return nil, err
	}
	if req.Product, err = ValidateText(get(models.FieldProduct), LabelProduct, ProductOptions); err != nil {
		return nil, err
	}
	if req.Description, err = ValidateText(get(models.FieldDescription), LabelDescription, DescriptionOptions); err != nil {
		return nil, err
	}
	if req.KBURLs, err = ValidateURLList(get(models.FieldKBURLs), LabelKBURLs, KBURLsMaxLength); err != nil {
		return nil, err
	}
	if req.SupportingMaterials, err = ValidateText(get(models.FieldSupportingMaterials), LabelSupportingMaterials, SupportingMaterialsOptions); err != nil {
		return nil, err
	}
	if req.Files, err = ValidateFileReferences(files); err != nil {
		return nil, err
	}

	return &req, nil
}
