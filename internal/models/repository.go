package models

// FileNodeType distinguishes blobs from trees in a repository listing.
type FileNodeType string

const (
	FileNodeFile FileNodeType = "file"
	FileNodeDir  FileNodeType = "dir"
)

// FileNode is one entry of a repository tree listing.
type FileNode struct {
	Path string       `json:"path"`
	Type FileNodeType `json:"type"`
	SHA  string       `json:"sha"`
	Size int64        `json:"size,omitempty"`
}

// FileContent is the decoded content of a single repository file.
type FileContent struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}
