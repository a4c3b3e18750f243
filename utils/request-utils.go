package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// maxMemory bounds the in-memory part of a parsed multipart form.
const maxMemory = 64 << 20

type MultipartResult struct {
	// Files holds the content of every part named after the file key, in
	// upload order.
	Files      [][]byte
	Properties Properties
}

type Properties struct {
	Main    string // id of the glacier that defines the merge domain
	Primary string // id to merge into; empty selects automatically
	Format  string // "yaml" or "zip"
}

// ReadMultiPartForm parses a multipart request carrying glacier
// directory files under fileKey plus merge options.
func ReadMultiPartForm(r *http.Request, fileKey string) (MultipartResult, error) {
	var result MultipartResult
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return result, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	for key, value := range r.MultipartForm.Value {
		if len(value) == 0 {
			continue
		}
		switch key {
		case "main":
			result.Properties.Main = value[0]
		case "primary":
			result.Properties.Primary = value[0]
		case "format":
			result.Properties.Format = value[0]
		}
	}

	for _, fileHeader := range r.MultipartForm.File[fileKey] {
		content, err := readPart(fileHeader)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, content)
	}

	return result, nil
}

func readPart(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileHeader.Filename, err)
	}
	return content, nil
}
