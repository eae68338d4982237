package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/internal/scheduler"
	"github.com/rsnash92/builda-club-sub000/internal/service"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"

	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeAppError maps engine error codes onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrClubNotFound, errors.ErrMemberNotFound, errors.ErrProposalNotFound:
		status = http.StatusNotFound
	case errors.ErrDuplicateVote:
		status = http.StatusConflict
	case errors.ErrInvalidAmount, errors.ErrInvalidPayload:
		status = http.StatusBadRequest
	case errors.ErrVotingClosed, errors.ErrProposalNotActive, errors.ErrProposalNotPassed:
		status = http.StatusConflict
	case errors.ErrSafeguardRejected, errors.ErrWorkTokenCapExceeded,
		errors.ErrInsufficientBalance, errors.ErrInsufficientTreasury,
		errors.ErrNotApprovedMinter:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func pathParts(r *http.Request) []string {
	return strings.Split(strings.Trim(r.URL.Path, "/"), "/")
}

type ClubHandler struct {
	clubSvc     *service.ClubService
	ledgerSvc   *service.LedgerService
	mintingSvc  *service.MintingService
	recoverySvc *service.RecoveryService
	scheduler   *scheduler.GovernanceScheduler
	ledgerRepo  *repository.LedgerRepository
}

func NewClubHandler(
	clubSvc *service.ClubService,
	ledgerSvc *service.LedgerService,
	mintingSvc *service.MintingService,
	recoverySvc *service.RecoveryService,
	sched *scheduler.GovernanceScheduler,
	ledgerRepo *repository.LedgerRepository,
) *ClubHandler {
	return &ClubHandler{
		clubSvc:     clubSvc,
		ledgerSvc:   ledgerSvc,
		mintingSvc:  mintingSvc,
		recoverySvc: recoverySvc,
		scheduler:   sched,
		ledgerRepo:  ledgerRepo,
	}
}

func (h *ClubHandler) CreateOrList(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ClubHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		EntryPrice string `json:"entry_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	price, err := decimal.NewFromString(req.EntryPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "entry_price must be a decimal string")
		return
	}

	club, err := h.clubSvc.CreateClub(r.Context(), req.Name, price)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, club)
}

func (h *ClubHandler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	clubs, total, err := h.clubSvc.ListClubs(r.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    clubs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// Route dispatches /api/clubs/{id}[/...] by path segment, the same way
// the rest of the API parses paths.
func (h *ClubHandler) Route(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r)
	if len(parts) < 3 {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/clubs/{club_id}")
		return
	}
	clubID := parts[2]
	if clubID == "" {
		writeError(w, http.StatusBadRequest, "club_id is required")
		return
	}

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			h.getStats(w, r, clubID)
		case http.MethodDelete:
			h.delete(w, r, clubID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch parts[3] {
	case "join":
		h.join(w, r, clubID)
	case "purchase":
		h.purchase(w, r, clubID)
	case "exit":
		h.exit(w, r, clubID)
	case "ownership":
		h.ownershipReport(w, r, parts, clubID)
	case "members":
		h.listMembers(w, r, clubID)
	case "ledger":
		h.recentLedger(w, r, clubID)
	case "minters":
		h.minters(w, r, clubID)
	case "safeguards":
		h.safeguards(w, r, clubID)
	case "mint":
		h.requestMint(w, r, clubID)
	case "sweep":
		h.triggerSweep(w, r, clubID)
	case "backups":
		h.backups(w, r, clubID)
	default:
		writeError(w, http.StatusNotFound, "unknown club resource")
	}
}

func (h *ClubHandler) getStats(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := h.clubSvc.GetStats(r.Context(), clubID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ClubHandler) delete(w http.ResponseWriter, r *http.Request, clubID string) {
	if err := h.clubSvc.DeleteClub(r.Context(), clubID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ClubHandler) join(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	member, err := h.clubSvc.JoinClub(r.Context(), clubID, req.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *ClubHandler) purchase(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID    string `json:"user_id"`
		USDAmount string `json:"usd_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id and usd_amount are required")
		return
	}
	amount, err := decimal.NewFromString(req.USDAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "usd_amount must be a decimal string")
		return
	}

	result, err := h.ledgerSvc.PurchaseTokens(r.Context(), clubID, req.UserID, amount)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ClubHandler) exit(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	result, err := h.ledgerSvc.ExitMember(r.Context(), clubID, req.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ClubHandler) ownershipReport(w http.ResponseWriter, r *http.Request, parts []string, clubID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if len(parts) < 5 || parts[4] == "" {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/clubs/{club_id}/ownership/{user_id}")
		return
	}
	report, err := h.clubSvc.GetOwnershipReport(r.Context(), clubID, parts[4])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ClubHandler) listMembers(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	members, err := h.clubSvc.ListMembers(r.Context(), clubID, (page-1)*pageSize, pageSize)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    members,
		"page":     page,
		"pageSize": pageSize,
	})
}

func (h *ClubHandler) recentLedger(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	entries, err := h.ledgerRepo.GetRecent(r.Context(), clubID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ClubHandler) minters(w http.ResponseWriter, r *http.Request, clubID string) {
	switch r.Method {
	case http.MethodPost:
		h.addMinter(w, r, clubID)
	case http.MethodDelete:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if err := h.clubSvc.RemoveApprovedMinter(r.Context(), clubID, userID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ClubHandler) safeguards(w http.ResponseWriter, r *http.Request, clubID string) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.clubSvc.GetSafeguards(r.Context(), clubID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req models.SafeguardConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		cfg, err := h.clubSvc.UpdateSafeguards(r.Context(), clubID, req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ClubHandler) addMinter(w http.ResponseWriter, r *http.Request, clubID string) {
	var req struct {
		UserID    string `json:"user_id"`
		GrantedBy string `json:"granted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.clubSvc.AddApprovedMinter(r.Context(), clubID, req.UserID, req.GrantedBy); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *ClubHandler) requestMint(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID          string `json:"user_id"`
		Activity        string `json:"activity"`
		RequestedTokens int64  `json:"requested_tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id, activity and requested_tokens are required")
		return
	}
	proposal, err := h.mintingSvc.RequestMint(r.Context(), clubID, req.UserID, req.Activity, req.RequestedTokens)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

func (h *ClubHandler) triggerSweep(w http.ResponseWriter, r *http.Request, clubID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.scheduler.TriggerSweep(r.Context(), clubID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "swept", "at": time.Now().Format(time.RFC3339)})
}

func (h *ClubHandler) backups(w http.ResponseWriter, r *http.Request, clubID string) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 50 {
			limit = 10
		}
		backups, err := h.recoverySvc.ListBackups(r.Context(), clubID, limit)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, backups)
	case http.MethodPost:
		if err := h.recoverySvc.BackupLedger(r.Context(), clubID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "backup created"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type ProposalHandler struct {
	proposalSvc *service.ProposalService
	mintingSvc  *service.MintingService
}

func NewProposalHandler(proposalSvc *service.ProposalService, mintingSvc *service.MintingService) *ProposalHandler {
	return &ProposalHandler{proposalSvc: proposalSvc, mintingSvc: mintingSvc}
}

func (h *ProposalHandler) CreateOrList(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ProposalHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClubID     string       `json:"club_id"`
		ProposerID string       `json:"proposer_id"`
		Type       string       `json:"type"`
		Title      string       `json:"title"`
		Payload    models.JSONB `json:"payload"`
		VotingDays int          `json:"voting_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ClubID == "" || req.ProposerID == "" {
		writeError(w, http.StatusBadRequest, "club_id and proposer_id are required")
		return
	}

	proposal, err := h.proposalSvc.CreateProposal(r.Context(), req.ClubID, req.ProposerID,
		models.ProposalType(req.Type), req.Title, req.Payload, req.VotingDays)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

func (h *ProposalHandler) list(w http.ResponseWriter, r *http.Request) {
	clubID := r.URL.Query().Get("club_id")
	if clubID == "" {
		writeError(w, http.StatusBadRequest, "club_id is required")
		return
	}
	status := models.ProposalStatus(r.URL.Query().Get("status"))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	proposals, err := h.proposalSvc.ListProposals(r.Context(), clubID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		writeAppError(w, err)
		return
	}
	total, err := h.proposalSvc.CountProposals(r.Context(), clubID, status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    proposals,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// Route dispatches /api/proposals/{id}[/...].
func (h *ProposalHandler) Route(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r)
	if len(parts) < 3 || parts[2] == "" {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/proposals/{proposal_id}")
		return
	}
	proposalID := parts[2]

	if len(parts) == 3 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		proposal, err := h.proposalSvc.GetProposal(r.Context(), proposalID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, proposal)
		return
	}

	switch parts[3] {
	case "votes":
		switch r.Method {
		case http.MethodPost:
			h.castVote(w, r, proposalID)
		case http.MethodGet:
			h.listVotes(w, r, proposalID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "verdicts":
		h.castVerdict(w, r, proposalID)
	case "execute":
		h.execute(w, r, proposalID)
	default:
		writeError(w, http.StatusNotFound, "unknown proposal resource")
	}
}

func (h *ProposalHandler) castVote(w http.ResponseWriter, r *http.Request, proposalID string) {
	var req struct {
		VoterID string `json:"voter_id"`
		Verdict string `json:"verdict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoterID == "" {
		writeError(w, http.StatusBadRequest, "voter_id and verdict are required")
		return
	}
	proposal, err := h.proposalSvc.CastVote(r.Context(), proposalID, req.VoterID, models.VoteVerdict(req.Verdict))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (h *ProposalHandler) listVotes(w http.ResponseWriter, r *http.Request, proposalID string) {
	votes, err := h.proposalSvc.ListVotes(r.Context(), proposalID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (h *ProposalHandler) castVerdict(w http.ResponseWriter, r *http.Request, proposalID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		VoterID string `json:"voter_id"`
		Approve bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoterID == "" {
		writeError(w, http.StatusBadRequest, "voter_id and approve are required")
		return
	}
	proposal, err := h.mintingSvc.CastVerdict(r.Context(), proposalID, req.VoterID, req.Approve)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (h *ProposalHandler) execute(w http.ResponseWriter, r *http.Request, proposalID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	proposal, err := h.proposalSvc.ExecuteProposal(r.Context(), proposalID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
