package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/tree"
)

// Request validation errors.
var (
	ErrMalformedBody = domain.NewError(domain.KindInvalidInput, "malformed_body", "request body is not valid JSON")
	ErrEndpoint      = domain.NewError(domain.KindNotFound, "endpoint_not_found", "the requested endpoint does not exist")
)

func decode(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

func participantVar(r *http.Request) domain.ParticipantID {
	return domain.ParticipantID(mux.Vars(r)["id"])
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, ErrEndpoint)
}

type placeRootRequest struct {
	Participant string `json:"participant"`
}

func (s *Server) handlePlaceRoot(w http.ResponseWriter, r *http.Request) {
	var req placeRootRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	node, err := s.network.PlaceRoot(r.Context(), domain.ParticipantID(req.Participant))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newNodeResponse(node))
}

type placeNodeRequest struct {
	Parent   string `json:"parent"`
	Child    string `json:"child"`
	Position string `json:"position"`
}

func (s *Server) handlePlaceNode(w http.ResponseWriter, r *http.Request) {
	var req placeNodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// An unparsable position stays PositionNone and is rejected by the tree.
	pos, _ := domain.ParsePosition(req.Position)
	node, err := s.network.PlaceNode(r.Context(), domain.ParticipantID(req.Parent), domain.ParticipantID(req.Child), pos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newNodeResponse(node))
}

func (s *Server) handleLookupNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.network.LookupNode(r.Context(), participantVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNodeResponse(node))
}

func (s *Server) handleDownline(w http.ResponseWriter, r *http.Request) {
	depth := DefaultDownlineDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("depth %q: %w", raw, tree.ErrInvalidDepth))
			return
		}
		depth = parsed
	}

	entries, err := s.network.Downline(r.Context(), participantVar(r), depth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]downlineEntry, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, downlineEntry{Participant: e.Participant.String(), Depth: e.Depth})
	}
	writeJSON(w, http.StatusOK, resp)
}

type creditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source"`
	Remark string          `json:"remark"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	source := domain.SourceAdminCredit
	if req.Source != "" {
		source = domain.EntrySource(req.Source)
	}

	entry, err := s.network.CreditPV(r.Context(), participantVar(r), req.Amount, source, req.Remark)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryResponse(entry))
}

type debitRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Remark string          `json:"remark"`
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.network.DebitPV(r.Context(), participantVar(r), req.Amount, req.Remark)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryResponse(entry))
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	st, err := s.network.GetTotalAndHistory(r.Context(), participantVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatementResponse(st))
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.network.GetCurrentSessionStatus(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionStatusResponse(st))
}

type legEventRequest struct {
	Leg       string     `json:"leg"`
	Tier      string     `json:"tier"`
	SourceRef string     `json:"source_ref"`
	At        *time.Time `json:"at,omitempty"` // defaults to now
}

func (s *Server) handleRecordLegEvent(w http.ResponseWriter, r *http.Request) {
	var req legEventRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	at := s.now()
	if req.At != nil {
		at = *req.At
	}
	leg, _ := domain.ParsePosition(req.Leg)

	e, err := s.network.RecordLegEvent(r.Context(), participantVar(r), leg, domain.PackageTier(req.Tier), req.SourceRef, at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventResponses([]*domain.PairEvent{e})[0])
}

type purchaseRequest struct {
	Buyer     string `json:"buyer"`
	Tier      string `json:"tier"`
	SourceRef string `json:"source_ref"`
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.network.RecordPurchase(r.Context(), domain.ParticipantID(req.Buyer), domain.PackageTier(req.Tier), req.SourceRef, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventResponses(events))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	res, err := s.network.ClassifyDueWindows(r.Context(), participantVar(r), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDueResponse(res))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	events, err := s.network.PendingQueue(r.Context(), participantVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventResponses(events))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.network.Summary(r.Context(), participantVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]tierSummaryResponse, 0, len(summary))
	for _, t := range summary {
		resp = append(resp, tierSummaryResponse{
			Tier:         t.Tier.String(),
			Matched:      t.Matched,
			Pending:      t.Pending,
			PendingLeft:  t.PendingLeft,
			PendingRight: t.PendingRight,
			Pairs:        t.Pairs,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
