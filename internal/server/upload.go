package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/rules"
)

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

type analyzeStarted struct {
	FileName   string `json:"fileName"`
	AnalysisID string `json:"analysisId"`
}

// handleAnalyze validates the upload and rules, stores the file and hands
// the job to the analysis queue. Nothing is created when validation fails.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerFromContext(r.Context(), s.logger)
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+formOverhead)

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, s.logger, s.tooLarge())
			return
		}
		writeError(w, r, s.logger, common.NewValidationError("No file uploaded"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, s.logger, common.NewValidationError("No file uploaded"))
		return
	}
	defer file.Close()

	if common.MaxBytes(s.opts.MaxUploadBytes)("file", header.Size) != nil {
		writeError(w, r, s.logger, s.tooLarge())
		return
	}
	head := make([]byte, len(constants.PDFMagic))
	n, _ := io.ReadFull(file, head)
	if common.PDFContent("file", head[:n]) != nil {
		// no magic header: fall back to the declared type and name
		v := common.NewValidator().
			Field("content_type", header.Header.Get("Content-Type"), common.PDFContentType).
			Field("file_name", header.Filename, common.PDFFileName)
		if v.HasErrors() {
			writeError(w, r, s.logger, common.NewAppError(common.CodeValidation, "Only PDF files are allowed!",
				errors.Join(common.ErrValidation, errors.New(v.ErrorMessage()))))
			return
		}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, r, s.logger, common.WrapError(err, "rewind upload"))
		return
	}

	ruleList, err := rules.Parse(r.FormValue("rules"), s.opts.MaxRules)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	path, err := s.saveUpload(file, header)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	id := uuid.NewString()
	if _, err := s.registry.Create(id); err != nil {
		_ = os.Remove(path)
		writeError(w, r, s.logger, err)
		return
	}
	job := async.Job{
		ID:          id,
		FilePath:    path,
		FileName:    header.Filename,
		Rules:       ruleList,
		SubmittedAt: time.Now(),
		TraceID:     common.RequestIDFromContext(r.Context()),
	}
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.registry.Destroy(id)
		_ = os.Remove(path)
		writeError(w, r, s.logger, common.NewAppError(common.CodeInternal, "Could not start analysis", err))
		return
	}

	log.Info("analyze.accepted", "job_id", id, "file", header.Filename, "size", header.Size, "rules", len(ruleList))
	writeOK(w, "PDF analysis started", analyzeStarted{FileName: header.Filename, AnalysisID: id})
}

func (s *Server) tooLarge() error {
	limit := fmt.Sprintf("%d bytes", s.opts.MaxUploadBytes)
	if s.opts.MaxUploadBytes%(1<<20) == 0 {
		limit = fmt.Sprintf("%dMB", s.opts.MaxUploadBytes>>20)
	}
	return common.NewAppError(common.CodePayloadTooLarge,
		"File size exceeds limit of "+limit+"!", common.ErrPayloadTooLarge)
}

// saveUpload writes the upload as <unix-ms>-<basename> under the upload dir.
func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", common.WrapError(err, "create upload dir")
	}
	base := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.pdf"
	}

	var (
		path string
		dst  *os.File
		err  error
	)
	ms := time.Now().UnixMilli()
	for attempt := int64(0); attempt < 5; attempt++ {
		path = filepath.Join(s.opts.UploadDir, fmt.Sprintf("%d-%s", ms+attempt, base))
		dst, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", common.WrapError(err, "create upload file")
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", common.WrapError(err, "write upload file")
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", common.WrapError(err, "close upload file")
	}
	return path, nil
}
