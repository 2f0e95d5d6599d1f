package model

import "time"

// ServiceConfig holds runtime parameters of the generation service set via CLI flags.
type ServiceConfig struct {
	MaxUploadBytes int64 // total size limit of one multipart submission
	FixZip         bool  // repack output without zip data descriptors
	ThumbWidth     int   // data-URI preview image bounds
	ThumbHeight    int
	MaxRefs        int // capacity of the live preview reference registry
}

// ExportConfig holds parameters of a client-side export.
type ExportConfig struct {
	Server    string        // base URL of the generation service; empty means in-process
	OutputDir string        // directory receiving the downloaded file
	Overwrite bool          // replace an existing file in OutputDir
	Timeout   time.Duration // HTTP round trip limit
}
