package docapi

// DocumentStatus is the backend's processing state for a document.
type DocumentStatus string

const (
	StatusUploaded     DocumentStatus = "UPLOADED"
	StatusPending      DocumentStatus = "PENDING"
	StatusProcessing   DocumentStatus = "PROCESSING"
	StatusReady        DocumentStatus = "READY"
	StatusPreviewReady DocumentStatus = "PREVIEW_READY"
	StatusFailed       DocumentStatus = "FAILED"
)

// IsReady reports whether analysis output is available.
func (s DocumentStatus) IsReady() bool {
	return s == StatusReady || s == StatusPreviewReady
}

// IsTerminal reports whether no further status change is expected.
func (s DocumentStatus) IsTerminal() bool {
	return s.IsReady() || s == StatusFailed
}

// --- Upload ---

// WriteLocationRequest asks the backend for a one-time storage write target.
type WriteLocationRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// WriteLocation is where and how the raw bytes must be written.
type WriteLocation struct {
	Bucket    string            `json:"bucket,omitempty"`
	Path      string            `json:"path"`
	SignedURL string            `json:"signed_url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type writeLocationResponse struct {
	Results *WriteLocation `json:"results"`
}

// RegisterRequest creates the document record for a stored object.
type RegisterRequest struct {
	Title        string `json:"title"`
	OriginalName string `json:"original_name"`
	FilePath     string `json:"file_path"`
	FileSize     int64  `json:"file_size"`
	MIMEType     string `json:"mime_type"`
	Checksum     string `json:"checksum"`
}

// Document is a registered document as returned by create and list.
type Document struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	OriginalName string `json:"original_name"`
	FilePath     string `json:"file_path"`
	FileSize     int64  `json:"file_size"`
	MIMEType     string `json:"mime_type"`
	Status       string `json:"status"`
	PageCount    *int   `json:"page_count"`
	Language     string `json:"language,omitempty"`
	CreatedAt    string `json:"created_at"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
}

type registerResponse struct {
	Document
	Results *Document `json:"results,omitempty"`
}

// --- Analysis ---

// AnalysisJob describes a submitted analysis job.
type AnalysisJob struct {
	ID        int64  `json:"id"`
	JobType   string `json:"job_type"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	CreatedAt string `json:"created_at"`
}

// StartAnalysisResponse is returned when a job is accepted.
type StartAnalysisResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Job     AnalysisJob `json:"job"`
}

// DocumentSnapshot is the document part of a status response.
type DocumentSnapshot struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	OriginalName   string         `json:"original_name"`
	CreatedAt      string         `json:"created_at"`
	FileSize       int64          `json:"file_size"`
	DocumentStatus DocumentStatus `json:"document_status"`
	PageCount      *int           `json:"page_count"`
}

// AnalysisOutput carries the analysis result once the document is ready.
type AnalysisOutput struct {
	AnalysisText string `json:"analysis_text"`
	AnalysisJSON any    `json:"analysis_json"`
	AIRaw        string `json:"ai_raw,omitempty"`
}

// Suggestions returns the "suggestions" list from AnalysisJSON. Entries
// that are not strings are skipped.
func (a *AnalysisOutput) Suggestions() []string {
	if a == nil {
		return nil
	}
	doc, ok := a.AnalysisJSON.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := doc["suggestions"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// JobProgress is the backend's own view of the running job.
type JobProgress struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	Progress   int     `json:"progress"`
	Error      string  `json:"error"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// StatusResponse is the full analysis status for a document.
type StatusResponse struct {
	Status   int              `json:"status"`
	Document DocumentSnapshot `json:"document"`
	Analysis *AnalysisOutput  `json:"analysis,omitempty"`
	Job      *JobProgress     `json:"job,omitempty"`
}

// --- Listing ---

// DocumentPage is one page of the paginated document listing.
type DocumentPage struct {
	Status   int        `json:"status"`
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []Document `json:"results"`
}

// OverviewStats are the dashboard counters.
type OverviewStats struct {
	TotalDocuments int `json:"total_documents"`
	Processing     int `json:"processing"`
	Ready          int `json:"ready"`
	Errors         int `json:"errors"`
}

type overviewResponse struct {
	Status  int           `json:"status"`
	Results OverviewStats `json:"results"`
}
