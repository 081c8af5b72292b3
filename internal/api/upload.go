package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"msgdash/internal/domain"
)

// UploadFile sends a message file to the backend for asynchronous
// processing. JSON files go to /upload-json, CSV files to /upload-csv along
// with the delimiter and header flag.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error) {
	const op = "upload file"

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return domain.UploadResult{}, fmt.Errorf("%s: read %s: %w", op, filename, err)
	}

	path := "/upload-json"
	if c.format == FormatCSV {
		path = "/upload-csv"
		if err := w.WriteField("delimiter", c.csvDelimiter); err != nil {
			return domain.UploadResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := w.WriteField("has_header", strconv.FormatBool(c.csvHasHeader)); err != nil {
			return domain.UploadResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := w.Close(); err != nil {
		return domain.UploadResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.UploadResult
	err = c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        path,
		body:        &body,
		contentType: w.FormDataContentType(),
	}, &out)
	return out, err
}

// processRequest is the body of a process-path request.
type processRequest struct {
	FilePath  string `json:"file_path"`
	Delimiter string `json:"delimiter,omitempty"`
	HasHeader *bool  `json:"has_header,omitempty"`
}

// ProcessPath asks the backend to ingest a file that already exists on the
// server.
func (c *Client) ProcessPath(ctx context.Context, filePath string) (domain.UploadResult, error) {
	in := processRequest{FilePath: filePath}
	path := "/upload-json"
	if c.format == FormatCSV {
		path = "/process-csv"
		hasHeader := c.csvHasHeader
		in.Delimiter = c.csvDelimiter
		in.HasHeader = &hasHeader
	}

	var out domain.UploadResult
	err := c.postJSON(ctx, "process server file", path, in, &out)
	return out, err
}
