package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// downloadFilename is the attachment name every cleaned file is served as.
const downloadFilename = "cleaned_data.xlsx"

// xlsxContentType is the media type of cleaned files.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleProcess downloads, cleans and stores the file named in the body.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeFileRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Process(r.Context(), req.toCore())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProcessResponse(result))
}

// handlePreview returns the first rows of the file named in the body,
// without cleaning it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeFileRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Preview(r.Context(), req.toCore(), s.opts.PreviewRows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPreviewResponse(result))
}

// handleDownload streams a cleaned file. Unknown, malformed and expired ids
// all answer 404.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	f, info, err := s.service.Store().Open(fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	logging.FromContext(r.Context()).Info("serving cleaned file",
		"file_id", fileID,
		logging.Size("size", info.Size()),
	)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+downloadFilename)
	http.ServeContent(w, r, downloadFilename, info.ModTime(), f)
}
