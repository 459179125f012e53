package httpapi

import (
	"encoding/json"
	"net/http"

	"LiquidCore/internal/domain"
)

type registerRequest struct {
	Addresses []string `json:"addresses"`
}

type registerResponse struct {
	Registered int `json:"registered"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addrs := make([]domain.Address, 0, len(req.Addresses))
	for _, raw := range req.Addresses {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid address: "+raw)
			return
		}
		addrs = append(addrs, addr)
	}

	if err := s.registry.Register(r.Context(), addrs); err != nil {
		s.log.Error().Err(err).Msg("register failed")
		writeError(w, http.StatusInternalServerError, "register failed")
		return
	}

	if s.watchlist != nil {
		for _, addr := range addrs {
			if err := s.watchlist.Add(r.Context(), addr); err != nil {
				s.log.Error().Err(err).Str("addr", addr.String()).Msg("watchlist persist failed")
			}
		}
	}

	writeJSON(w, http.StatusOK, registerResponse{Registered: len(addrs)})
}

type unregisterRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	s.registry.Unregister(addr)
	if s.watchlist != nil {
		if err := s.watchlist.Remove(r.Context(), addr); err != nil {
			s.log.Error().Err(err).Str("addr", addr.String()).Msg("watchlist remove failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type candidateResponse struct {
	Address            string `json:"address"`
	RepayMarket        string `json:"repay_market"`
	SeizeMarket        string `json:"seize_market"`
	ExpectedRevenueEth string `json:"expected_revenue_eth"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.registry.Scan(r.Context(), s.marketReg, s.prices)
	if err != nil {
		s.log.Error().Err(err).Msg("scan failed")
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	out := make([]candidateResponse, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateResponse{
			Address:            c.Address.String(),
			RepayMarket:        c.RepayMarket.String(),
			SeizeMarket:        c.SeizeMarket.String(),
			ExpectedRevenueEth: c.ExpectedRevenueEth.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type verifyResponse struct {
	Address string `json:"address"`
	Clean   bool   `json:"clean"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	clean, err := s.registry.Verify(r.Context(), addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", addr.String()).Msg("verify failed")
		writeError(w, http.StatusNotFound, "not watched or verify failed")
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Address: addr.String(), Clean: clean})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
