package hcl

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	// ContentTypeHCL is the custom MIME type for HCL experiment files
	ContentTypeHCL = "application/vnd.hcl"

	// ContentTypeJSON is the standard MIME type for JSON
	ContentTypeJSON = "application/json"
)

// hclAliases are other media types clients use for HCL
var hclAliases = map[string]bool{
	"text/x-hcl":        true,
	"application/x-hcl": true,
}

// DetectContentType determines if the request body is JSON or HCL based on the
// Content-Type header, falling back to inspecting the body
func DetectContentType(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if mediaType == ContentTypeHCL || hclAliases[mediaType] {
				return ContentTypeHCL, nil
			}
			if mediaType == ContentTypeJSON {
				return ContentTypeJSON, nil
			}
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}

	// Reset the body so it can be read again later
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	trimmedBody := bytes.TrimSpace(body)
	if len(trimmedBody) > 0 {
		if trimmedBody[0] == '{' || trimmedBody[0] == '[' {
			return ContentTypeJSON, nil
		}
		if IsHCL(trimmedBody) {
			return ContentTypeHCL, nil
		}
	}

	// Default to JSON if we can't determine
	return ContentTypeJSON, nil
}

// IsHCLBasedOnExtension checks if the filename has an HCL extension
func IsHCLBasedOnExtension(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}
