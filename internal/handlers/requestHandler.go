package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akolanti/MedExtract/internal/adapter"
	"github.com/akolanti/MedExtract/internal/adapter/utils"
	"github.com/akolanti/MedExtract/internal/api"
	"github.com/akolanti/MedExtract/internal/job"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var logRH = logger_i.NewLogger("RequestHandler")

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func GetHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// ExtractHandler accepts one or more PDFs in the multipart field "files" and queues them
// as a single batch.
func ExtractHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request", "remote", r.RemoteAddr)
		return
	}
	log := logRH.WithTrace(r.Context())

	docs, status, msg := readUploads(r, handlerInstance.maxFileSize)
	if status != 0 {
		log.Warn("Bad upload", "status", status, "error", msg)
		WriteErrorResponse(w, status, "", msg)
		return
	}

	batch, err := CreateNewBatch(r.Context(), docs)
	if err != nil {
		log.Error("Failed to create batch", "err", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Could not queue batch")
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(batch.Id))
}

func GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	id := utils.GetChiURLParam(r, "id")
	logRH.WithTrace(r.Context()).Debug("Get Status Request", "URL path", r.URL.Path)

	report, err := GetBatchStatus(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, id, "Batch not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToStatusResponse(report))
}

func DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	id := utils.GetChiURLParam(r, "id")
	log := logRH.WithTrace(r.Context()).With("batchId", id)

	name, data, err := GetBatchResult(r.Context(), id)
	switch {
	case errors.Is(err, job.ErrNotFound):
		WriteErrorResponse(w, http.StatusNotFound, id, "Batch not found")
		return
	case errors.Is(err, job.ErrNotReady):
		WriteErrorResponse(w, http.StatusConflict, id, "Batch is still processing")
		return
	case err != nil:
		log.Error("Workbook missing for complete batch", "err", err)
		WriteErrorResponse(w, http.StatusInternalServerError, id, "Workbook not available")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Error("Failed to write workbook", "err", err)
	}
}
