package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/mailru/easyjson"
	"github.com/mr-tron/base58"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
	"cate-trust-layer/internal/wire"
)

const (
	defaultHistoryLimit = 50
	maxRequestBody      = 64 << 10
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.opts.Breaker.Status().State
	status := "ok"
	if state != domain.CircuitClosed {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Signer:      s.opts.Engine.Identity(),
		Circuit:     state.String(),
		HistorySize: s.opts.History.Len(),
		Version:     s.opts.Version,
	})
}

// handleSign signs a caller-supplied decision. The breaker is consulted
// read-only: an open circuit or a blocked asset forces BLOCK.
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, "malformed request body: "+err.Error())
		return
	}

	if err := ValidateSignRequest(req, s.opts.Now(), s.opts.TimestampWindow); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   errCodeValidationFailed,
				Message: "request validation failed",
				Details: ve.Fields,
			})
			return
		}
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	payload := PayloadFromRequest(req)
	if reason := s.denied(req.AssetID); reason != "" {
		s.log.Info().Str("asset", req.AssetID).Str("reason", reason).Msg("signing request forced to BLOCK")
		payload = forceBlocked(payload)
	}

	start := time.Now()
	sd, err := s.opts.Engine.Sign(payload)
	s.opts.Metrics.RecordSigning(time.Since(start), err)
	if err != nil {
		s.log.Error().Err(err).Str("asset", req.AssetID).Msg("sign decision")
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	if s.opts.Replay != nil {
		if err := s.opts.Replay.Accept(r.Context(), sd.DecisionHash); err != nil {
			if errors.Is(err, attestation.ErrReplayed) {
				writeError(w, http.StatusConflict, "Replayed", "decision with this hash was already signed")
				return
			}
			s.log.Error().Err(err).Msg("replay guard")
			writeError(w, http.StatusServiceUnavailable, "Unavailable", "replay guard unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, wire.FromDomain(sd))
}

// denied returns why the breaker would deny assetID, or "". It does not
// consume half-open probes.
func (s *Server) denied(assetID string) string {
	if st := s.opts.Breaker.Status(); st.State == domain.CircuitOpen {
		return "circuit open: " + st.Reason
	}
	if a := s.opts.Breaker.AssetStatus(assetID); a.Blocked {
		return "asset blocked: " + a.LastFailureReason
	}
	return ""
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in wire.SignedDecision
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, "malformed request body: "+err.Error())
		return
	}

	sd, err := in.ToDomain()
	if err != nil {
		s.opts.Metrics.RecordVerificationFailure("malformed")
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	res := attestation.VerifyTrusted(sd, s.opts.Engine.PublicKey())
	out := VerifyResponse{
		Valid:        res.Valid,
		DecisionHash: hexutil.Encode(sd.DecisionHash[:]),
		Signer:       base58.Encode(sd.SignerPublicKey[:]),
	}
	if !res.Valid {
		out.Error = verificationCode(res.Err)
		s.opts.Metrics.RecordVerificationFailure(out.Error)
		s.log.Warn().Str("asset", sd.Payload.AssetID).Str("error", out.Error).Msg("decision verification failed")
	}
	writeJSON(w, http.StatusOK, out)
}

func verificationCode(err error) string {
	switch {
	case errors.Is(err, attestation.ErrHashMismatch):
		return "HashMismatch"
	case errors.Is(err, attestation.ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, attestation.ErrInvalidSigner):
		return "InvalidSigner"
	case err == nil:
		return ""
	default:
		return "Invalid"
	}
}

func (s *Server) handleAssetDecision(w http.ResponseWriter, r *http.Request) {
	asset, ok := assetVar(w, r)
	if !ok {
		return
	}

	if e, ok := s.opts.History.Latest(asset); ok {
		writeJSON(w, http.StatusOK, newDecisionView(e))
		return
	}

	if s.opts.Decisions != nil {
		rec, err := s.opts.Decisions.GetLatest(r.Context(), asset)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, recordView(rec))
			return
		case !errors.Is(err, storage.ErrNotFound):
			s.opts.Metrics.RecordStorageError("decisions", "get_latest")
			s.log.Error().Err(err).Str("asset", asset).Msg("load latest decision")
			writeError(w, http.StatusInternalServerError, "Internal", "decision store unavailable")
			return
		}
	}

	writeError(w, http.StatusNotFound, "NotFound", "no decision for asset "+asset)
}

// handleHistory serves recent decisions from the ring. With from/to (Unix
// seconds) it reads the decision store instead.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultHistoryLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, "limit must be a positive integer")
		return
	}
	asset := q.Get("asset")

	if q.Get("from") != "" || q.Get("to") != "" {
		s.historyFromStore(w, r, asset, limit)
		return
	}

	entries := s.opts.History.Recent(limit)
	if asset != "" {
		entries = s.opts.History.ByAsset(asset, limit)
	}
	resp := HistoryResponse{Decisions: make([]DecisionView, 0, len(entries))}
	for _, e := range entries {
		resp.Decisions = append(resp.Decisions, newDecisionView(e))
	}
	resp.Count = len(resp.Decisions)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) historyFromStore(w http.ResponseWriter, r *http.Request, asset string, limit int) {
	if s.opts.Decisions == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "decision store not configured")
		return
	}
	q := r.URL.Query()
	from, err1 := intParam(q.Get("from"), 0)
	to, err2 := intParam(q.Get("to"), int(s.opts.Now().Unix()))
	if err1 != nil || err2 != nil || from > to {
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, "from/to must be Unix seconds with from <= to")
		return
	}

	records, err := s.opts.Decisions.ListByTimeRange(r.Context(), int64(from), int64(to))
	if err != nil {
		s.opts.Metrics.RecordStorageError("decisions", "list_by_time_range")
		s.log.Error().Err(err).Msg("list decisions")
		writeError(w, http.StatusInternalServerError, "Internal", "decision store unavailable")
		return
	}

	resp := HistoryResponse{Decisions: make([]DecisionView, 0, len(records))}
	for _, rec := range records {
		if asset != "" && rec.AssetID() != asset {
			continue
		}
		resp.Decisions = append(resp.Decisions, recordView(rec))
		if len(resp.Decisions) == limit {
			break
		}
	}
	resp.Count = len(resp.Decisions)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCircuit(w http.ResponseWriter, _ *http.Request) {
	s.writeCircuit(w)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req EmergencyStopRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errCodeValidationFailed, "malformed request body: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual emergency stop"
	}
	s.opts.Breaker.EmergencyStop(req.Reason)
	s.log.Warn().Str("reason", req.Reason).Str("remote", r.RemoteAddr).Msg("emergency stop")
	s.writeCircuit(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.opts.Breaker.Reset()
	s.log.Warn().Str("remote", r.RemoteAddr).Msg("circuit reset")
	s.writeCircuit(w)
}

func (s *Server) writeCircuit(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, newCircuitResponse(s.opts.Breaker.Status(), s.opts.Breaker.Assets()))
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	if s.opts.Anchor == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "anchor reader not configured")
		return
	}
	asset, ok := assetVar(w, r)
	if !ok {
		return
	}

	status, addr, err := anchor.Query(r.Context(), s.opts.Anchor, s.opts.ProgramID, asset)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newAnchorResponse(status, addr))
	case errors.Is(err, anchor.ErrNotInitialized):
		writeError(w, http.StatusNotFound, "NotInitialized", "no published status at "+addr.String())
	case errors.Is(err, anchor.ErrAssetIDEmpty), errors.Is(err, anchor.ErrAssetIDTooLong):
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
	default:
		s.log.Error().Err(err).Str("asset", asset).Msg("query anchor")
		writeError(w, http.StatusBadGateway, "Upstream", "anchor query failed")
	}
}

func assetVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	asset, err := url.PathUnescape(mux.Vars(r)["asset"])
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeValidationFailed, "malformed asset id")
		return "", false
	}
	return asset, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func readJSON(r *http.Request, v easyjson.Unmarshaler) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return easyjson.Unmarshal(body, v)
}

// writeJSON serializes the response via easyjson.
func writeJSON(w http.ResponseWriter, status int, data easyjson.Marshaler) {
	payload, err := easyjson.Marshal(data)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
