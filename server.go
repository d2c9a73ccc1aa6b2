package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"i4.energy/across/smsgw/listener"
	"i4.energy/across/smsgw/modem"
	"i4.energy/across/smsgw/store"
)

// Server wires the HTTP surface to the core: sending SMS through the
// modem and reading back persisted history through the store. It is a
// minimal surface for manually exercising the core, not a production
// API (spec.md's Non-goals exclude authentication/TLS/OpenAPI here).
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem
	Store  store.Store
	Hub    *listener.Hub
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/sms", s.handleSendSMS).Methods(http.MethodPost)
	r.HandleFunc("/numbers", s.handleLatestNumbers).Methods(http.MethodGet)
	r.HandleFunc("/numbers/{phone}/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/numbers/{phone}/friendly-name", s.handleFriendlyName).Methods(http.MethodGet, http.MethodPut)
	r.HandleFunc("/messages/{id}/reports", s.handleDeliveryReports).Methods(http.MethodGet)
	if s.Hub != nil {
		r.Handle("/events", s.Hub)
	}
	return r
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	if err := s.Modem.SendSMS(r.Context(), req.To, req.Message); err != nil {
		s.Logger.Error("failed to send SMS", "error", err, "to", req.To)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) pageFromQuery(r *http.Request) store.Page {
	q := r.URL.Query()
	page := store.Page{Reverse: q.Get("order") == "asc"}
	if limit, err := strconv.ParseUint(q.Get("limit"), 10, 64); err == nil {
		page.Limit = limit
	}
	if offset, err := strconv.ParseUint(q.Get("offset"), 10, 64); err == nil {
		page.Offset = offset
	}
	return page
}

func (s *Server) handleLatestNumbers(w http.ResponseWriter, r *http.Request) {
	numbers, err := s.Store.GetLatestNumbers(r.Context(), s.pageFromQuery(r))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, numbers)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	phone := mux.Vars(r)["phone"]
	messages, err := s.Store.GetMessages(r.Context(), phone, s.pageFromQuery(r))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, messages)
}

func (s *Server) handleDeliveryReports(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.sendError(w, "invalid message id", http.StatusBadRequest)
		return
	}
	reports, err := s.Store.GetDeliveryReports(r.Context(), id, s.pageFromQuery(r))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, reports)
}

func (s *Server) handleFriendlyName(w http.ResponseWriter, r *http.Request) {
	phone := mux.Vars(r)["phone"]

	if r.Method == http.MethodGet {
		name, err := s.Store.GetFriendlyName(r.Context(), phone)
		if err != nil {
			s.sendError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, struct {
			FriendlyName *string `json:"friendly_name"`
		}{FriendlyName: name})
		return
	}

	type FriendlyNameRequest struct {
		FriendlyName *string `json:"friendly_name"`
	}
	var req FriendlyNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Store.UpdateFriendlyName(r.Context(), phone, req.FriendlyName); err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
