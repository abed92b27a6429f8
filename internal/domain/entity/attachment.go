package entity

// AttachmentInfo is what the file-info endpoint returns.
type AttachmentInfo struct {
	MessageID   string `json:"message_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}
