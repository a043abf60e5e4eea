package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/export"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
	"github.com/joseph-ayodele/pdf-analyzer/internal/pipeline"
)

// handleReport renders a finished job as XLSX while it is still in the registry.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.registry.Get(id)
	if !ok {
		writeError(w, r, s.logger, common.NewAppError(common.CodeNotFound, "Analysis not found", common.ErrNotFound))
		return
	}
	if !snap.Terminal() {
		writeError(w, r, s.logger, common.NewAppError("NOT_READY", "Analysis is still running", common.ErrInvalidInput))
		return
	}

	entry := export.Entry{JobID: id}
	switch res := snap.Result.(type) {
	case llm.Result:
		entry.Result = res
	case pipeline.Failure:
		entry.Err = res.Error
	default:
		writeError(w, r, s.logger, common.NewAppError(common.CodeInternal, "Analysis has no result",
			fmt.Errorf("%w: unexpected result %T", common.ErrInternal, snap.Result)))
		return
	}

	b, err := s.exporter.VerdictsXLSX([]export.Entry{entry})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analysis-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
