package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// handleImport runs an import and returns its report.
// 200 on success, 422 when validation rejected the file.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.serveImport(w, r, false)
}

// handleValidate parses, maps and validates an upload without writing.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.serveImport(w, r, true)
}

func (s *Server) serveImport(w http.ResponseWriter, r *http.Request, dryRun bool) {
	req, err := s.parseImportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.Enrich(r.Context(), s.logger).Info("import requested",
		zap.String("entity", string(req.Entity)),
		zap.String("format", string(req.Format)),
		zap.Int("bytes", len(req.Data)),
		zap.Bool("dry_run", dryRun),
	)

	var result *importer.Result
	if dryRun {
		result, err = s.engine.Validate(r.Context(), req)
	} else {
		result, err = s.engine.Import(r.Context(), req)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

// parseImportRequest turns the multipart upload into an importer.Request.
// The whole file is read before the engine opens a transaction.
func (s *Server) parseImportRequest(w http.ResponseWriter, r *http.Request) (importer.Request, error) {
	var req importer.Request

	entity, err := importer.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		return req, err
	}
	req.Entity = entity

	if req.OperatorID, err = operatorID(r); err != nil {
		return req, err
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, &requestError{status: http.StatusRequestEntityTooLarge, err: err}
		}
		return req, badRequest("invalid form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, badRequest("no file provided")
	}
	defer file.Close()

	if req.Data, err = io.ReadAll(file); err != nil {
		return req, badRequest("read upload: %v", err)
	}

	fileType := r.FormValue("fileType")
	if fileType == "" {
		fileType = importer.FileTypeFromName(header.Filename)
	}
	if req.Format, err = importer.ParseFileFormat(fileType); err != nil {
		return req, err
	}

	req.Options, err = parseOptions(r)
	return req, err
}

func parseOptions(r *http.Request) (importer.Options, error) {
	var opts importer.Options

	if raw := r.FormValue("columnMapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.ColumnMapping); err != nil {
			return opts, badRequest("invalid column mapping: %v", err)
		}
	}

	var err error
	if opts.UpdateExisting, err = formBool(r, "updateExisting", false); err != nil {
		return opts, err
	}
	if raw := r.FormValue("hasHeaderRow"); raw != "" {
		has, err := formBool(r, "hasHeaderRow", true)
		if err != nil {
			return opts, err
		}
		opts.HasHeaderRow = &has
	}
	if opts.DayFirst, err = formBool(r, "dateDayFirst", false); err != nil {
		return opts, err
	}

	if raw := strings.TrimSpace(r.FormValue("batchSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return opts, badRequest("invalid form field batchSize %q", raw)
		}
		opts.BatchSize = n
	}

	if raw := r.FormValue("delimiter"); raw != "" {
		runes := []rune(raw)
		if len(runes) != 1 {
			return opts, badRequest("invalid form field delimiter %q", raw)
		}
		opts.Delimiter = runes[0]
	}

	if raw := r.FormValue("matchMode"); raw != "" {
		mode, err := importer.ParseMatchMode(raw)
		if err != nil {
			return opts, err
		}
		opts.MatchMode = mode
	}

	return opts, nil
}

func formBool(r *http.Request, name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("invalid form field %s %q", name, raw)
	}
	return v, nil
}
