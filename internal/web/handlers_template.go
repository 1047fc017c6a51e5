package web

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

// handleDownloadTemplate returns a header-only CSV naming the canonical
// fields of an entity type. A file built from it needs no column mapping.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	entity, err := importer.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	def, err := importer.Definition(entity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.csv"`, entity))

	cw := csv.NewWriter(w)
	if err := cw.Write(def.Fields); err != nil {
		s.logger.Warn("template write error", zap.Error(err))
		return
	}
	cw.Flush()
}
