package handlers

import (
	"net/http"

	"gallery-viewer/internal/mediatypes"
	"gallery-viewer/internal/metadata"
)

// OpenRequest selects the page to show.
type OpenRequest struct {
	Index int `json:"index"`
}

// RatingRequest sets a user rating; 0 clears it.
type RatingRequest struct {
	Rating *float64 `json:"rating"`
}

// ListGalleries returns the summaries of every gallery.
func (h *Handlers) ListGalleries(w http.ResponseWriter, r *http.Request) {
	field := mediatypes.SortField(r.URL.Query().Get("sort"))
	order := mediatypes.SortOrder(r.URL.Query().Get("order"))
	if field == "" {
		field = mediatypes.SortByName
	}
	if order == "" {
		order = mediatypes.SortAsc
	}
	if order != mediatypes.SortAsc && order != mediatypes.SortDesc {
		writeJSONError(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}
	writeJSONValue(w, h.app.List(field, order))
}

// GetGallery returns the detail projection of one gallery.
func (h *Handlers) GetGallery(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	detail, err := h.app.Detail(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONValue(w, detail)
}

// OpenGallery counts a read and returns the file to show.
func (h *Handlers) OpenGallery(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	var req OpenRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	path, err := h.app.Open(r.Context(), id, req.Index)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONValue(w, map[string]string{"path": path})
}

// GetThumbnail serves the generated thumbnail of a gallery.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	g, found := h.app.Library().Get(id)
	if !found {
		writeJSONError(w, "gallery not found", http.StatusNotFound)
		return
	}
	path := g.ThumbnailPath(h.app.ThumbnailDir())
	if path == "" {
		writeJSONError(w, "thumbnail not generated yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// DeleteGallery removes a gallery and its content.
func (h *Handlers) DeleteGallery(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	if _, err := h.app.Delete(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, "deleted")
}

// SetRating stores a user rating.
func (h *Handlers) SetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	var req RatingRequest
	if err := decodeBody(r, &req); err != nil || req.Rating == nil {
		writeJSONError(w, "rating is required", http.StatusBadRequest)
		return
	}
	if *req.Rating < 0 || *req.Rating > 5 {
		writeJSONError(w, "rating must be between 0 and 5", http.StatusBadRequest)
		return
	}
	if err := h.app.SetRating(r.Context(), id, *req.Rating); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, "updated")
}

// EditMetadata applies facet edits keyed by facet name.
func (h *Handlers) EditMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryID(r)
	if !ok {
		writeJSONError(w, "invalid gallery id", http.StatusBadRequest)
		return
	}
	var edits map[string]metadata.Edit
	if err := decodeBody(r, &edits); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(edits) == 0 {
		writeJSONError(w, "no edits given", http.StatusBadRequest)
		return
	}
	if err := h.app.EditMetadata(r.Context(), id, edits); err != nil {
		writeAppError(w, err)
		return
	}
	detail, err := h.app.Detail(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONValue(w, detail)
}
