package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/stockimport/internal/core"
)

const (
	// multipartOverhead is the allowance for form fields and boundaries on
	// top of the file size limit.
	multipartOverhead = 1 << 20

	// multipartMemory is how much of a form ParseMultipartForm keeps in
	// memory before spilling to temp files.
	multipartMemory = 8 << 20
)

// uploadResponse is returned when an import is accepted.
type uploadResponse struct {
	Success bool `json:"success"`
	*core.StartResult
}

// handleUpload accepts a spreadsheet and starts an import job. The job runs
// in the background; the response carries its id and the recommended
// transport mode for following it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	importType := chi.URLParam(r, "importType")

	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.fail(w, r, fmt.Errorf("%w: over %d bytes", core.ErrFileTooLarge, s.service.MaxFileSize()))
			return
		}
		s.fail(w, r, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	opts, err := parseOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.StartImport(ctx, core.ImportRequest{
		Tenant:     s.tenant(r),
		ImportType: importType,
		FileName:   header.Filename,
		Data:       data,
		Options:    opts,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/imports/jobs/"+res.JobID)
	writeJSON(w, http.StatusAccepted, uploadResponse{Success: true, StartResult: res})
}

// parseOptions reads the boolean form fields of an upload. Missing fields
// are false.
func parseOptions(r *http.Request) (core.Options, error) {
	var opts core.Options
	fields := []struct {
		name string
		dst  *bool
	}{
		{"overwriteExisting", &opts.Overwrite},
		{"validateOnly", &opts.ValidateOnly},
		{"notifyOnComplete", &opts.NotifyOnComplete},
	}
	for _, f := range fields {
		v, err := parseFormBool(r.FormValue(f.name))
		if err != nil {
			return core.Options{}, fmt.Errorf("%w: %s: %v", errBadRequest, f.name, err)
		}
		*f.dst = v
	}
	return opts, nil
}

func parseFormBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "on", "yes", "si", "sí":
		return true, nil
	}
	return strconv.ParseBool(v)
}

// estimateRequest is the body of POST /api/imports/estimate. ImportType or
// Complexity grades the rows; both may be empty.
type estimateRequest struct {
	FileSize   int64  `json:"fileSize"`
	FileName   string `json:"fileName"`
	ImportType string `json:"importType"`
	Complexity string `json:"complexity"`
}

// handleEstimate recommends polling or push before the file is sent.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err))
		return
	}

	complexity := req.Complexity
	if complexity == "" {
		complexity = req.ImportType
	}
	est, err := s.service.Estimate(req.FileSize, req.FileName, complexity)
	if err != nil {
		if !errors.Is(err, core.ErrUnknownImportType) && !errors.Is(err, core.ErrUnsupportedFormat) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}
