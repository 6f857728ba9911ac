// Package backend implements [eka.ChatBackend] and the document endpoints
// of the EKA HTTP API.
//
// Streaming chat responses are handed to the caller as the raw event stream;
// decoding happens in [eka.FrameReader]. The other endpoints are plain
// JSON request/response pairs relayed without transformation.
package backend

// DefaultBaseURL is the address of a backend started with its defaults.
const DefaultBaseURL = "http://localhost:8000"

const (
	chatPath       = "/chat"
	chatStreamPath = "/chat/stream"
	documentsPath  = "/documents/"
	uploadPath     = "/ingest/upload"
	ingestURLPath  = "/ingest/url"
	healthPath     = "/health"
)

// apiChatRequest is the JSON body of both chat endpoints.
type apiChatRequest struct {
	Question     string `json:"question"`
	Mode         string `json:"mode,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Status       string `json:"status,omitempty"`
}

type apiAnswer struct {
	Answer    string        `json:"answer"`
	Citations []apiCitation `json:"citations"`
}

// apiCitation mirrors the citation objects of the meta event. Every field
// may be null.
type apiCitation struct {
	Ref         int      `json:"ref"`
	DocID       *string  `json:"doc_id"`
	ChunkID     *string  `json:"chunk_id"`
	Title       *string  `json:"title"`
	Source      *string  `json:"source"`
	HeadingPath []string `json:"heading_path"`
	Page        *int     `json:"page"`
	Score       *float64 `json:"score"`
	Snippet     *string  `json:"snippet"`
}

// apiDocument is a stored document. Listings add "id" as an alias of
// "doc_id" and omit "raw_text".
type apiDocument struct {
	ID      string         `json:"id"`
	DocID   string         `json:"doc_id"`
	Title   *string        `json:"title"`
	Source  string         `json:"source"`
	Mode    *string        `json:"mode"`
	RawText string         `json:"raw_text"`
	Meta    map[string]any `json:"meta"`
}

type apiIngestURLRequest struct {
	URL    string `json:"url"`
	Mode   string `json:"mode"`
	Source string `json:"source"`
}

type apiIngestResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

type apiHealth struct {
	OK   bool            `json:"ok"`
	App  string          `json:"app"`
	Env  string          `json:"env"`
	Deps map[string]bool `json:"deps"`
}
