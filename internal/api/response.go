package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/ledger"
	"pairnet/internal/network"
	"pairnet/internal/pairing"
	"pairnet/internal/session"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeError reports err with the status of its kind. Internal errors are
// logged and their message is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	if kind == domain.KindInternal {
		s.logger.Error().Err(err).Str("request_id", requestID(r)).Str("path", r.URL.Path).Msg("request failed")
		message = "internal error"
	}

	writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Reason:    domain.ReasonOf(err),
		Message:   message,
		RequestID: requestID(r),
	})
}

type nodeResponse struct {
	Participant string `json:"participant"`
	Parent      string `json:"parent,omitempty"`
	Left        string `json:"left,omitempty"`
	Right       string `json:"right,omitempty"`
	Position    string `json:"position,omitempty"`
	Depth       int    `json:"depth"`
	CreatedAt   int64  `json:"created_at"`
}

func newNodeResponse(n *domain.TreeNode) nodeResponse {
	return nodeResponse{
		Participant: n.Participant.String(),
		Parent:      n.Parent.String(),
		Left:        n.Left.String(),
		Right:       n.Right.String(),
		Position:    n.Position.String(),
		Depth:       n.Depth,
		CreatedAt:   n.CreatedAt,
	}
}

type downlineEntry struct {
	Participant string `json:"participant"`
	Depth       int    `json:"depth"`
}

type entryResponse struct {
	EntryID   string          `json:"entry_id"`
	Seq       int64           `json:"seq"`
	Amount    decimal.Decimal `json:"amount"`
	Source    string          `json:"source"`
	Status    string          `json:"status"`
	Remark    string          `json:"remark"`
	CreatedAt int64           `json:"created_at"`
}

func newEntryResponse(e *domain.LedgerEntry) entryResponse {
	return entryResponse{
		EntryID:   e.EntryID,
		Seq:       e.Seq,
		Amount:    e.Amount,
		Source:    e.Source.String(),
		Status:    string(e.Status),
		Remark:    e.Remark,
		CreatedAt: e.CreatedAt,
	}
}

type statementResponse struct {
	Participant string          `json:"participant"`
	Total       decimal.Decimal `json:"total"`
	Entries     []entryResponse `json:"entries"`
}

func newStatementResponse(st *ledger.Statement) statementResponse {
	resp := statementResponse{
		Participant: st.Participant.String(),
		Total:       st.Total,
		Entries:     make([]entryResponse, 0, len(st.Entries)),
	}
	for _, e := range st.Entries {
		resp.Entries = append(resp.Entries, newEntryResponse(e))
	}
	return resp
}

type windowResponse struct {
	Index            int       `json:"index"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

func newWindowResponse(w session.Window) windowResponse {
	return windowResponse{
		Index:            w.Index,
		Start:            w.Start,
		End:              w.End,
		RemainingSeconds: int64(w.Remaining / time.Second),
	}
}

type sessionStatusResponse struct {
	Now                 time.Time       `json:"now"`
	Active              bool            `json:"active"`
	Current             *windowResponse `json:"current,omitempty"`
	Next                windowResponse  `json:"next"`
	LastClosed          windowResponse  `json:"last_closed"`
	ProcessedPairsToday int             `json:"processed_pairs_today"`
}

func newSessionStatusResponse(st *network.SessionStatus) sessionStatusResponse {
	resp := sessionStatusResponse{
		Now:                 st.Now,
		Active:              st.Active,
		Next:                newWindowResponse(st.Next),
		LastClosed:          newWindowResponse(st.LastClosed),
		ProcessedPairsToday: st.ProcessedPairsToday,
	}
	if st.Current != nil {
		current := newWindowResponse(*st.Current)
		resp.Current = &current
	}
	return resp
}

type eventResponse struct {
	EventID     string `json:"event_id"`
	Participant string `json:"participant"`
	Leg         string `json:"leg"`
	Tier        string `json:"tier"`
	SourceRef   string `json:"source_ref"`
	CreatedAt   int64  `json:"created_at"`
	Matched     bool   `json:"matched"`
	PairID      string `json:"pair_id,omitempty"`
	WindowIndex int    `json:"window_index,omitempty"`
}

func newEventResponses(events []*domain.PairEvent) []eventResponse {
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, eventResponse{
			EventID:     e.EventID,
			Participant: e.Participant.String(),
			Leg:         e.Leg.String(),
			Tier:        e.Tier.String(),
			SourceRef:   e.SourceRef,
			CreatedAt:   e.CreatedAt,
			Matched:     e.Matched,
			PairID:      e.PairID,
			WindowIndex: e.WindowIndex,
		})
	}
	return resp
}

type pairResponse struct {
	PairID       string `json:"pair_id"`
	Tier         string `json:"tier"`
	LeftEventID  string `json:"left_event_id"`
	RightEventID string `json:"right_event_id"`
}

type classifiedWindow struct {
	Window windowResponse `json:"window"`
	Pairs  []pairResponse `json:"pairs"`
}

type dueResponse struct {
	Participant   string             `json:"participant"`
	Windows       []classifiedWindow `json:"windows"`
	PairsMatched  int                `json:"pairs_matched"`
	CheckpointEnd *time.Time         `json:"checkpoint_end,omitempty"`
}

func newDueResponse(res *pairing.DueResult) dueResponse {
	resp := dueResponse{
		Participant:  res.Participant.String(),
		Windows:      make([]classifiedWindow, 0, len(res.Windows)),
		PairsMatched: res.PairsMatched,
	}
	for _, wr := range res.Windows {
		cw := classifiedWindow{
			Window: newWindowResponse(wr.Window),
			Pairs:  make([]pairResponse, 0, len(wr.Pairs)),
		}
		for _, p := range wr.Pairs {
			cw.Pairs = append(cw.Pairs, pairResponse{
				PairID:       p.PairID,
				Tier:         p.Tier.String(),
				LeftEventID:  p.LeftEventID,
				RightEventID: p.RightEventID,
			})
		}
		resp.Windows = append(resp.Windows, cw)
	}
	if res.Checkpoint != nil {
		end := time.UnixMilli(res.Checkpoint.WindowEnd).UTC()
		resp.CheckpointEnd = &end
	}
	return resp
}

type tierSummaryResponse struct {
	Tier         string `json:"tier"`
	Matched      int    `json:"matched"`
	Pending      int    `json:"pending"`
	PendingLeft  int    `json:"pending_left"`
	PendingRight int    `json:"pending_right"`
	Pairs        int    `json:"pairs"`
}
