package models

// Step is a position in the KB request conversation.
type Step string

const (
	StepStart               Step = "start"
	StepSubject             Step = "subject"
	StepTaskType            Step = "task_type"
	StepPriority            Step = "priority"
	StepProduct             Step = "product"
	StepDescription         Step = "description"
	StepKBURLs              Step = "kb_urls"
	StepSupportingMaterials Step = "supporting_materials"
	StepFiles               Step = "files"
	StepSubmit              Step = "submit"
)

// Field names used as keys in the session data map.
const (
	FieldSubject             = "subject"
	FieldTaskType            = "taskType"
	FieldPriority            = "priority"
	FieldProduct             = "product"
	FieldDescription         = "description"
	FieldKBURLs              = "kbUrls"
	FieldSupportingMaterials = "supportingMaterials"
)

// Task types offered at the task_type step.
const (
	TaskTypeNewFeature     = "New Feature"
	TaskTypeContentUpdate  = "Content Update"
	TaskTypeFeatureRequest = "Feature Request"
	TaskTypeContentFlag    = "Content Flag"
	TaskTypeContentEdit    = "Content Edit"
)

// TaskTypes lists the allowed task types in display order.
var TaskTypes = []string{
	TaskTypeNewFeature,
	TaskTypeContentUpdate,
	TaskTypeFeatureRequest,
	TaskTypeContentFlag,
	TaskTypeContentEdit,
}

// Priorities lists the allowed priorities in display order.
var Priorities = []string{"Low", "Medium", "High", "Urgent"}

// DefaultUrgency is used when enrichment does not provide one.
const DefaultUrgency = "Medium"

// Action ids for structured input that does not address a data step.
const (
	ActionSubmit = "submit_request"
	ActionCancel = "cancel_request"
	ActionRetry  = "retry_request"
)

// String implements fmt.Stringer.
func (s Step) String() string {
	return string(s)
}
