package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/engine"
	"github.com/watchy-labs/watchy/internal/jobstore"
)

const engineVersion = "1.0.0"

// getHealth reports service status the way spec.md §6 requires: supported
// chains, storage backend, and wallet mode, without ever leaking key
// material.
func (s *Server) getHealth(c *gin.Context) {
	addr, ok := s.signer.Address()
	body := gin.H{
		"status":           "ok",
		"version":          engineVersion,
		"supported_chains": supportedChainNames(),
		"default_chain":    s.cfg.Chains.DefaultChainID,
		"storage":          storageMode(s.cfg.Store),
		"wallet_mode":      walletMode(s.cfg.Signer),
	}
	if ok {
		body["signer_address"] = strings.ToLower(addr.Hex())
	}
	if s.explorer != nil {
		body["explorer"] = "postgres"
	} else {
		body["explorer"] = "none"
	}
	c.JSON(http.StatusOK, body)
}

type auditRequest struct {
	AgentID     flexibleUint `json:"agent_id"`
	ChainID     *uint64      `json:"chain_id"`
	Registry    string       `json:"registry"`
	AuditType   string       `json:"audit_type"`
	CallbackURL string       `json:"callback_url"`
}

// submitAudit validates the request body and hands it to the engine. It
// accepts agent_id as either a JSON number or a decimal string, since agent
// IDs are conceptually uint256 and callers commonly quote large values.
func (s *Server) submitAudit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	agentID, ok := req.AgentID.Decimal()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_agent_id"})
		return
	}

	chainID := s.cfg.Chains.DefaultChainID
	if req.ChainID != nil {
		chainID = *req.ChainID
	}
	chainCfg, ok := chains.Get(chainID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": fmt.Sprintf("chain %d is not configured", chainID)})
		return
	}
	if req.Registry != "" && !strings.EqualFold(req.Registry, chainCfg.RegistryAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "registry does not match the configured registry for this chain"})
		return
	}

	job, err := s.engine.Submit(c.Request.Context(), chainID, agentID, req.CallbackURL)
	if err != nil {
		if errors.Is(err, engine.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "retry_after": 3600})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"audit_id":             job.ID,
		"chain_id":             chainID,
		"chain_name":           chainCfg.Name,
		"status":               job.Status,
		"created_at":           job.CreatedAt,
		"estimated_completion": job.CreatedAt + 180,
	})
}

// getAuditStatus returns a job's current lifecycle state, including phase
// progress while in_progress.
func (s *Server) getAuditStatus(c *gin.Context) {
	job, err := s.engine.Status(c.Request.Context(), c.Param("audit_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	body := gin.H{
		"audit_id":   job.ID,
		"agent_id":   job.AgentID,
		"chain_id":   job.ChainID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	}
	if job.CompletedAt != nil {
		body["completed_at"] = *job.CompletedAt
	}
	if job.Status == jobstore.StatusInProgress && job.TotalSteps > 0 {
		body["progress"] = gin.H{
			"phase":           job.Phase,
			"completed_steps": job.CompletedSteps,
			"total_steps":     job.TotalSteps,
		}
	}
	if job.Status == jobstore.StatusFailed {
		body["error"] = job.Error
	}
	c.JSON(http.StatusOK, body)
}

// getAuditReport returns the full signed report once an audit is complete.
// ?narrative=true additionally attaches an LLM-generated plain-language
// summary when narration is configured; this is best-effort and never fails
// the request.
func (s *Server) getAuditReport(c *gin.Context) {
	rpt, err := s.engine.Report(c.Request.Context(), c.Param("audit_id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "not_completed", "message": err.Error()})
		return
	}

	if s.narrator != nil && c.Query("narrative") == "true" {
		summary, err := s.narrator.Summarize(c.Request.Context(), rpt)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"report": rpt, "narrative": summary})
			return
		}
	}
	c.JSON(http.StatusOK, rpt)
}

// listAgentAudits paginates a registered agent's audit history.
func (s *Server) listAgentAudits(c *gin.Context) {
	chainID, agentID, ok := parseRegistryAndAgent(c.Param("registry"), c.Param("agent_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := s.store.ListByAgent(c.Request.Context(), chainID, agentID, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

// parseRegistryAndAgent accepts :registry either as a bare chain ID or as an
// eip155:<chainId>:<address> CAIP-10 identifier, matching whichever form the
// caller already has on hand.
func parseRegistryAndAgent(registryParam, agentIDParam string) (chainID uint64, agentID string, ok bool) {
	registryParam = strings.TrimPrefix(registryParam, "eip155:")
	parts := strings.SplitN(registryParam, ":", 2)
	chainID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	n, valid := new(big.Int).SetString(agentIDParam, 10)
	if !valid || n.Sign() < 0 {
		return 0, "", false
	}
	return chainID, n.String(), true
}

// flexibleUint unmarshals a JSON field that may arrive as either a number or
// a decimal string, as spec.md's uint256-as-string-or-number agent_id
// requires.
type flexibleUint string

func (v *flexibleUint) UnmarshalJSON(data []byte) error {
	*v = flexibleUint(strings.Trim(string(data), `"`))
	return nil
}

// Decimal validates v as a non-negative base-10 integer of any size and
// returns its canonical decimal string form, since agent IDs are uint256 on
// chain and must not be truncated to a machine word.
func (v flexibleUint) Decimal() (string, bool) {
	n, ok := new(big.Int).SetString(string(v), 10)
	if !ok || n.Sign() < 0 {
		return "", false
	}
	return n.String(), true
}
