package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/document"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// UploadDocument accepts either a JSON body {title, text, page_count} or a
// multipart form with a "file" part holding extracted text.
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	var up document.Upload
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var ok bool
		if up, ok = readMultipartUpload(w, r); !ok {
			return
		}
	} else if !decodeJSON(w, r, &up) {
		return
	}

	doc, err := h.Docs.Upload(up)
	if err != nil {
		if errors.Is(err, document.ErrEmptyDocument) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("document", doc.ID).Str("title", doc.Title).Int("pages", doc.PageCount).Msg("document uploaded")
	respondJSON(w, http.StatusCreated, withoutText(*doc))
}

func readMultipartUpload(w http.ResponseWriter, r *http.Request) (document.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return document.Upload{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file part")
		return document.Upload{}, false
	}
	defer file.Close()

	text, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read file")
		return document.Upload{}, false
	}
	up := document.Upload{Title: r.FormValue("title"), Text: string(text)}
	if up.Title == "" {
		up.Title = header.Filename
	}
	if pages, err := strconv.Atoi(r.FormValue("page_count")); err == nil {
		up.PageCount = pages
	}
	return up, true
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Docs.List())
}

func (h *Handlers) CurrentDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.Docs.CurrentDocument()
	if !ok {
		respondError(w, http.StatusNotFound, "No document selected")
		return
	}
	respondJSON(w, http.StatusOK, withoutText(*doc))
}

func (h *Handlers) SelectDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Docs.Select(chi.URLParam(r, "documentID"))
	if err != nil {
		respondDocumentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, withoutText(*doc))
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentID")
	if !h.Docs.Remove(id) {
		respondDocumentError(w, &document.ErrNotFound{ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondDocumentError(w http.ResponseWriter, err error) {
	var nf *document.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func withoutText(d models.Document) models.Document {
	d.Text = ""
	return d
}
