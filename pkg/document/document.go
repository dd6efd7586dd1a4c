// Package document describes documents attached to a chat for retrieval
// augmented generation, and the client-side checks applied before upload.
package document

// Status is the processing state of an uploaded document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Document is a file attached to a chat and indexed by the server.
type Document struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalPath string `json:"original_path"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	ChunkCount   int    `json:"chunk_count"`
	IndexPath    string `json:"index_path,omitempty"`
	MetadataPath string `json:"metadata_path,omitempty"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	ProcessedAt  string `json:"processed_at,omitempty"`
}

// UploadResponse is returned after a document upload.
type UploadResponse struct {
	Document Document `json:"document"`
	Message  string   `json:"message"`
}

// ListResponse lists the documents of a chat.
type ListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	Content    string  `json:"content"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	PageNumber *int    `json:"page_number,omitempty"`
}

// SearchResponse is the result of a document search.
type SearchResponse struct {
	Results           []SearchResult `json:"results"`
	Query             string         `json:"query"`
	DocumentsSearched int            `json:"documents_searched"`
}
