package handlers

import (
	"net/http"
)

func (h *ServiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.srv.Stats())
}

func (h *ServiceHandler) InFlight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.srv.InFlight())
}

func (h *ServiceHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.srv.Jobs())
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
