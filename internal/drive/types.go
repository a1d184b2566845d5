package drive

import "time"

// FileInfo represents metadata about an uploaded file in Google Drive
type FileInfo struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// CreatedTime is when the file was created
	CreatedTime time.Time `json:"createdTime,omitzero"`

	// WebViewLink is a link for opening the file in a relevant Google viewer
	WebViewLink string `json:"webViewLink,omitempty"`

	// Parents are the IDs of the parent folders
	Parents []string `json:"parents,omitempty"`
}

// UploadOptions contains options for uploading files
type UploadOptions struct {
	// ParentFolders are the IDs of parent folders
	ParentFolders []string

	// Description is a short description of the file
	Description string

	// MimeType is the MIME type of the file content
	MimeType string
}
