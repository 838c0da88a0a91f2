package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/akolanti/MedExtract/internal/adapter"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
)

const (
	uploadField   = "files"
	maxFormMemory = 32 << 20
)

var pdfMagic = []byte("%PDF")

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// can't send a clean status code now
		logRH.Error("Error encoding response", "err", err)
	}
}

func validateContext(ctx context.Context) bool {
	if ctx.Err() != nil {
		logRH.WithTrace(ctx).Warn("context error", "err", ctx.Err())
		return false
	}
	return true
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, message string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, message, httpCode))
}

// readUploads returns the uploaded documents, or a non-zero status and message for the client.
func readUploads(r *http.Request, maxFileSize int64) ([]jobModel.Document, int, string) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, http.StatusBadRequest, "Expected a multipart form"
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, "No files uploaded"
	}

	docs := make([]jobModel.Document, 0, len(headers))
	for _, h := range headers {
		name := filepath.Base(h.Filename)
		if h.Size > maxFileSize {
			return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds %d MB", name, maxFileSize>>20)
		}
		f, err := h.Open()
		if err != nil {
			return nil, http.StatusBadRequest, "Could not read " + name
		}
		data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
		f.Close()
		if err != nil {
			return nil, http.StatusBadRequest, "Could not read " + name
		}
		if len(data) == 0 {
			return nil, http.StatusBadRequest, name + " is empty"
		}
		if int64(len(data)) > maxFileSize {
			return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds %d MB", name, maxFileSize>>20)
		}
		if !bytes.HasPrefix(data, pdfMagic) {
			return nil, http.StatusUnsupportedMediaType, name + " is not a PDF"
		}
		docs = append(docs, jobModel.Document{Filename: name, Data: data})
	}
	return docs, 0, ""
}
