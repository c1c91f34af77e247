package ingest

// PresignRequest asks for an upload location for one payload.
type PresignRequest struct {
	AppID       string `json:"appId"`
	EventID     string `json:"eventId"`
	ContentHash string `json:"contentHash"`
}

// PresignResponse carries the upload location.
type PresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	ExpiresAt string `json:"expiresAt"`
}

// CommitRequest references an uploaded payload.
type CommitRequest struct {
	Action        string `json:"action"`
	AppID         string `json:"appId"`
	EventID       string `json:"eventId"`
	ContentHash   string `json:"contentHash"`
	DataStoreType string `json:"dataStoreType"`
	DataStoreArn  string `json:"dataStoreArn"`
	ResourceID    string `json:"resourceId"`
	StackName     string `json:"stackName"`
}

// Commit statuses that mean the snapshot was kept.
const (
	CommitStatusAccepted  = "ACCEPTED"
	CommitStatusProcessed = "PROCESSED"
	CommitStatusDuplicate = "DUPLICATE"
)

// CommitResponse is the service's verdict on a commit.
type CommitResponse struct {
	EventID      string `json:"eventId"`
	Status       string `json:"status"`
	ProcessedAt  string `json:"processedAt"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// apiErrorBody is the error envelope returned with non-2xx responses.
type apiErrorBody struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}
