package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/http/middleware"
	"github.com/landbridge/contracts-service/internal/service"
	"github.com/landbridge/contracts-service/internal/storage"
)

type Handler struct {
	contracts   *service.ContractService
	crs         *service.ChangeRequestService
	billing     *service.BillingService
	attachments *service.AttachmentService
	files       *storage.Local
	log         zerolog.Logger
}

func NewHandler(
	contracts *service.ContractService,
	crs *service.ChangeRequestService,
	billing *service.BillingService,
	attachments *service.AttachmentService,
	files *storage.Local,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		contracts:   contracts,
		crs:         crs,
		billing:     billing,
		attachments: attachments,
		files:       files,
		log:         log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Signed download links carry their own authorization.
	router.GET("/files/:key", h.serveFile)

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/contracts", h.listContracts)
	protected.POST("/contracts", h.createContract)
	protected.GET("/contracts/:id", h.getContract)
	protected.PATCH("/contracts/:id", h.updateContract)
	protected.POST("/contracts/:id/submit", h.submitContract)
	protected.POST("/contracts/:id/review", h.reviewContract)
	protected.POST("/contracts/:id/client-decision", h.contractClientDecision)
	protected.POST("/contracts/:id/terminate", h.terminateContract)
	protected.GET("/contracts/:id/history", h.contractHistory)
	protected.GET("/contracts/:id/milestones", h.contractMilestones)
	protected.GET("/contracts/:id/engineers", h.contractEngineers)
	protected.GET("/contracts/:id/staffing", h.contractStaffing)

	protected.GET("/contracts/:id/billing", h.contractBilling)
	protected.GET("/contracts/:id/billing/overdue", h.contractOverdueBilling)
	protected.GET("/contracts/:id/billing/export", h.exportBilling)
	protected.POST("/contracts/:id/billing/:rowID/paid", h.markBillingPaid)

	protected.GET("/contracts/:id/change-requests", h.listChangeRequests)
	protected.POST("/contracts/:id/change-requests", h.createChangeRequest)
	protected.GET("/change-requests/:id", h.getChangeRequest)
	protected.PATCH("/change-requests/:id", h.updateChangeRequest)
	protected.POST("/change-requests/:id/submit", h.submitChangeRequest)
	protected.POST("/change-requests/:id/review", h.reviewChangeRequest)
	protected.POST("/change-requests/:id/approve", h.approveChangeRequest)
	protected.POST("/change-requests/:id/client-decision", h.crClientDecision)
	protected.POST("/change-requests/:id/reject", h.rejectChangeRequest)
	protected.GET("/change-requests/:id/preview", h.previewChangeRequest)

	protected.GET("/appendices/:id/link", h.appendixLink)

	protected.POST("/attachments", h.uploadAttachment)
	protected.GET("/attachments", h.listAttachments)
	protected.GET("/attachments/:id/link", h.attachmentLink)
	protected.DELETE("/attachments/:id", h.deleteAttachment)
}

// Contracts

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	contracts, err := h.contracts.List(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

func (h *Handler) createContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.handleError(c, err)
		return
	}
	contract, err := h.contracts.Create(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (h *Handler) getContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) updateContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req updateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.handleError(c, err)
		return
	}
	contract, err := h.contracts.Update(c.Request.Context(), principal, id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) submitContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contract, err := h.contracts.SubmitForInternalReview(c.Request.Context(), principal, id, req.ReviewerID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) reviewContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := req.toAction()
	if err != nil {
		h.handleError(c, err)
		return
	}
	contract, err := h.contracts.SubmitReview(c.Request.Context(), principal, id, action, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) contractClientDecision(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contract, err := h.contracts.ClientDecision(c.Request.Context(), principal, id, req.Approve)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) terminateContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contract, err := h.contracts.Terminate(c.Request.Context(), principal, id, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) contractHistory(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	entries, err := h.contracts.History(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) contractMilestones(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	milestones, err := h.contracts.Milestones(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *Handler) contractEngineers(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	engineers, err := h.contracts.Engineers(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"engineers": engineers})
}

func (h *Handler) contractStaffing(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	baseline, current, err := h.crs.Staffing(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"baseline": baseline, "current": current})
}

// Billing

func (h *Handler) contractBilling(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	if _, err := h.contracts.Get(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	contract, rows, err := h.billing.Ledger(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract.Code, "rows": rows})
}

func (h *Handler) contractOverdueBilling(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	if _, err := h.contracts.Get(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	notice, err := h.billing.Overdue(c.Request.Context(), id, time.Now())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, notice)
}

func (h *Handler) exportBilling(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	if _, err := h.contracts.Get(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	name, content, err := h.billing.Export(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+name+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
}

func (h *Handler) markBillingPaid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	rowID, err := parseID(c, "rowID")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req paidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := h.billing.SetPaid(c.Request.Context(), principal, id, rowID, req.Paid)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// Change requests

func (h *Handler) listChangeRequests(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	crs, err := h.crs.List(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"change_requests": crs})
}

func (h *Handler) createChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req changeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.handleError(c, err)
		return
	}
	cr, err := h.crs.Create(c.Request.Context(), principal, id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}

func (h *Handler) getChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	cr, resources, billing, err := h.crs.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"change_request":  cr,
		"resource_deltas": resources,
		"billing_deltas":  billing,
	})
}

func (h *Handler) updateChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req changeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.handleError(c, err)
		return
	}
	cr, err := h.crs.Update(c.Request.Context(), principal, id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) submitChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cr, err := h.crs.Submit(c.Request.Context(), principal, id, req.ReviewerID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) reviewChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := req.toAction()
	if err != nil {
		h.handleError(c, err)
		return
	}
	cr, err := h.crs.SubmitReview(c.Request.Context(), principal, id, action, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) approveChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cr, err := h.crs.ApproveAsManager(c.Request.Context(), principal, id, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) crClientDecision(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cr, err := h.crs.ClientDecision(c.Request.Context(), principal, id, req.Approve, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) rejectChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cr, err := h.crs.Reject(c.Request.Context(), principal, id, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *Handler) previewChangeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	before, after, err := h.crs.Preview(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"before": before, "after": after})
}

// Appendices and attachments

func (h *Handler) appendixLink(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	appendix, url, err := h.crs.AppendixLink(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appendix": appendix, "url": url})
}

func (h *Handler) uploadAttachment(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	content, err := readFormFile(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	input := service.UploadAttachmentInput{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	}
	if raw := c.PostForm("contract_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract_id"})
			return
		}
		v := uint(id)
		input.ContractID = &v
	}
	if raw := c.PostForm("change_request_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change_request_id"})
			return
		}
		v := uint(id)
		input.ChangeRequestID = &v
	}
	attachment, err := h.attachments.Upload(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func (h *Handler) listAttachments(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	var contractID, crID *uint
	if raw := c.Query("contract_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract_id"})
			return
		}
		v := uint(id)
		contractID = &v
	}
	if raw := c.Query("change_request_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change_request_id"})
			return
		}
		v := uint(id)
		crID = &v
	}
	attachments, err := h.attachments.List(c.Request.Context(), principal, contractID, crID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func (h *Handler) attachmentLink(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	attachment, url, err := h.attachments.Link(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachment": attachment, "url": url})
}

func (h *Handler) deleteAttachment(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, err := parseID(c, "id")
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := h.attachments.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// serveFile resolves a presigned download link. The signature covers the key
// and the expiry; no bearer token is needed.
func (h *Handler) serveFile(c *gin.Context) {
	key := c.Param("key")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry"})
		return
	}
	if !h.files.ValidateSignature(key, expires, c.Query("sig")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired link"})
		return
	}
	content, err := h.files.Open(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+key+"\"")
	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrImmutableField):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
