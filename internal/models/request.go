package models

import "time"

// KBRequest is the full set of validated user answers.
type KBRequest struct {
	Subject             string   `json:"subject"`
	TaskType            string   `json:"task_type"`
	Priority            string   `json:"priority"`
	Product             string   `json:"product"`
	Description         string   `json:"description"`
	KBURLs              string   `json:"kb_urls,omitempty"`
	SupportingMaterials string   `json:"supporting_materials,omitempty"`
	Files               []string `json:"files,omitempty"`
}

// Enrichment holds the fields inferred by the enrichment service.
type Enrichment struct {
	RequestType       string `json:"request_type"`
	ChangeDescription string `json:"change_description"`
	ArticleLink       string `json:"article_link"`
	UrgencyLevel      string `json:"urgency_level"`
	FeatureName       string `json:"feature_name"`
}

// SubmissionResult is the merged record sent to the board.
type SubmissionResult struct {
	KBRequest
	Enrichment

	UserID string `json:"user_id"`

	ItemID  string `json:"item_id,omitempty"`
	ItemURL string `json:"item_url,omitempty"`

	FilesAttached int `json:"files_attached"`
	FilesFailed   int `json:"files_failed"`

	ProcessedAt       time.Time `json:"processed_at"`
	EnrichmentEnabled bool      `json:"enrichment_enabled"`
	Degraded          bool      `json:"degraded"`
}

// ItemName is the board record name for the request.
func (r *SubmissionResult) ItemName() string {
	name := r.FeatureName
	if name == "" {
		name = r.Subject
	}
	return r.RequestType + ": " + name
}
