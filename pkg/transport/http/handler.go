package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/claims"
	"github.com/tarun-engg-dpm/offerings/pkg/offers"
)

type claimsHandler struct {
	claims *claims.Service
	logger *logrus.Logger
}

type claimRequest struct {
	UserID   string   `json:"user_id"`
	OfferIDs []string `json:"offer_ids"`
}

type claimResponse struct {
	GrantedOfferIDs []string `json:"granted_offer_ids"`
}

type rawClaimRequest struct {
	// Keys are interleaved (offer, user) pairs; Args are the matching
	// interleaved caps plus a trailing epoch-seconds expiry.
	Keys []string `json:"keys"`
	Args []string `json:"args"`
}

type rawClaimResponse struct {
	Granted []string `json:"granted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *claimsHandler) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not decode request body")
		return
	}

	granted, err := h.claims.Claim(r.Context(), req.UserID, req.OfferIDs)
	if err != nil {
		h.writeClaimError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{GrantedOfferIDs: granted})
}

func (h *claimsHandler) handleRawClaim(w http.ResponseWriter, r *http.Request) {
	var req rawClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not decode request body")
		return
	}

	batch, err := claims.DecodeBatch(req.Keys, req.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	granted, err := h.claims.GrantRaw(r.Context(), batch)
	if err != nil {
		h.writeClaimError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rawClaimResponse{Granted: granted})
}

func (h *claimsHandler) writeClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, claims.ErrMalformedBatch),
		errors.Is(err, claims.ErrExpiryNotFuture),
		errors.Is(err, offers.ErrUnknownOffer):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorf("claim failed: %v", err)
		writeError(w, http.StatusInternalServerError, "claim failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(err)
	}
}
