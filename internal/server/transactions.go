package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	"github.com/smallbiznis/staybook/pkg/db/pagination"
	"go.uber.org/zap"
)

type ingestTransactionRequest struct {
	MessageID     string           `json:"message_id"`
	ChatID        string           `json:"chat_id"`
	GroupID       string           `json:"group_id"`
	Location      string           `json:"location" binding:"required"`
	Unit          string           `json:"unit" binding:"required"`
	CheckoutTime  string           `json:"checkout_time"`
	Duration      string           `json:"duration"`
	PaymentMethod string           `json:"payment_method" binding:"required,payment_method"`
	AgentName     string           `json:"agent_name" binding:"required"`
	MarketingName string           `json:"marketing_name"`
	Notes         string           `json:"notes"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	Commission    *decimal.Decimal `json:"commission"`
	SkipFinancial bool             `json:"skip_financial"`
	OccurredAt    *time.Time       `json:"occurred_at"`
	Metadata      map[string]any   `json:"metadata"`
}

type ingestTransactionResponse struct {
	Status        bookingdomain.IngestStatus `json:"status"`
	TransactionID string                     `json:"transaction_id,omitempty"`
	Transaction   *bookingdomain.Transaction `json:"transaction,omitempty"`
	Errors        []ValidationError          `json:"errors,omitempty"`
}

type updateTransactionRequest struct {
	Location      *string          `json:"location"`
	Unit          *string          `json:"unit"`
	CheckoutTime  *string          `json:"checkout_time"`
	Duration      *string          `json:"duration"`
	PaymentMethod *string          `json:"payment_method" binding:"omitempty,payment_method"`
	AgentName     *string          `json:"agent_name"`
	MarketingName *string          `json:"marketing_name"`
	Notes         *string          `json:"notes"`
	Amount        *decimal.Decimal `json:"amount"`
	Commission    *decimal.Decimal `json:"commission"`
	SkipFinancial *bool            `json:"skip_financial"`
	OccurredAt    *time.Time       `json:"occurred_at"`
}

func (r updateTransactionRequest) toDomain() bookingdomain.UpdateRequest {
	return bookingdomain.UpdateRequest{
		Location:      r.Location,
		Unit:          r.Unit,
		CheckoutTime:  r.CheckoutTime,
		Duration:      r.Duration,
		PaymentMethod: r.PaymentMethod,
		AgentName:     r.AgentName,
		MarketingName: r.MarketingName,
		Notes:         r.Notes,
		Amount:        r.Amount,
		Commission:    r.Commission,
		SkipFinancial: r.SkipFinancial,
		OccurredAt:    r.OccurredAt,
	}
}

// IngestTransaction records one booking. Duplicates answer 200 with the
// original id and rejected input answers 422; neither is an error.
func (s *Server) IngestTransaction(c *gin.Context) {
	var req ingestTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if fields := bindingErrors(err); len(fields) > 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"data": ingestTransactionResponse{
				Status: bookingdomain.IngestValidationError,
				Errors: fields,
			}})
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	messageID := strings.TrimSpace(req.MessageID)
	ctx := obscontext.WithChatID(c.Request.Context(), req.ChatID)
	ctx = obscontext.WithMessageID(ctx, messageID)
	c.Request = c.Request.WithContext(ctx)

	if res := s.limiter.AllowChat(ctx, req.ChatID); !res.Allowed {
		logger.FromContext(ctx).Warn("ingest rate limited", zap.Duration("retry_after", res.RetryAfter))
		c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
		AbortWithError(c, ErrRateLimited)
		return
	}
	lock, ok := s.limiter.LockMessage(ctx, messageID)
	if !ok {
		AbortWithError(c, ErrMessageInFlight)
		return
	}
	defer s.limiter.Unlock(ctx, lock)

	in := bookingdomain.IngestRequest{
		MessageID:     messageID,
		ChatID:        strings.TrimSpace(req.ChatID),
		GroupID:       strings.TrimSpace(req.GroupID),
		Location:      req.Location,
		Unit:          req.Unit,
		CheckoutTime:  strings.TrimSpace(req.CheckoutTime),
		Duration:      strings.TrimSpace(req.Duration),
		PaymentMethod: req.PaymentMethod,
		AgentName:     req.AgentName,
		MarketingName: strings.TrimSpace(req.MarketingName),
		Notes:         strings.TrimSpace(req.Notes),
		Amount:        req.Amount,
		Commission:    req.Commission,
		SkipFinancial: req.SkipFinancial,
		Metadata:      req.Metadata,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	result, err := s.bookingSvc.Ingest(ctx, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := ingestTransactionResponse{Status: result.Status}
	if result.TransactionID != 0 {
		resp.TransactionID = result.TransactionID.String()
	}
	switch result.Status {
	case bookingdomain.IngestCreated:
		resp.Transaction = result.Transaction
		c.JSON(http.StatusCreated, gin.H{"data": resp})
	case bookingdomain.IngestDuplicate:
		c.JSON(http.StatusOK, gin.H{"data": resp})
	default:
		if result.Err != nil {
			resp.Errors = []ValidationError{describeValidationError(result.Err)}
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"data": resp})
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		From          string `form:"from"`
		To            string `form:"to"`
		Agent         string `form:"agent"`
		Location      string `form:"location"`
		PaymentMethod string `form:"payment_method"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rng, err := parseOptionalRange(query.From, query.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	method, err := parseOptionalPaymentMethod(query.PaymentMethod)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bookingSvc.List(c.Request.Context(), bookingdomain.ListRequest{
		Filter: bookingdomain.ListFilter{
			Range:         rng,
			AgentName:     strings.TrimSpace(query.Agent),
			Location:      strings.TrimSpace(query.Location),
			PaymentMethod: method,
		},
		Page: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := parseTransactionID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTransactionByMessage(c *gin.Context) {
	resp, err := s.bookingSvc.GetByMessageID(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTransaction(c *gin.Context) {
	id, err := parseTransactionID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.bookingSvc.Update(c.Request.Context(), id, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTransactionByMessage(c *gin.Context) {
	var req updateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.bookingSvc.UpdateByMessageID(c.Request.Context(), c.Param("message_id"), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	id, err := parseTransactionID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	opts, err := deleteOptions(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.bookingSvc.Delete(c.Request.Context(), id, opts); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteTransactionByMessage(c *gin.Context) {
	opts, err := deleteOptions(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.bookingSvc.DeleteByMessageID(c.Request.Context(), c.Param("message_id"), opts); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func deleteOptions(c *gin.Context) (bookingdomain.DeleteOptions, error) {
	release, err := parseOptionalBool(c.Query("release_message"))
	if err != nil {
		return bookingdomain.DeleteOptions{}, newValidationError("release_message", "invalid_release_message", "release_message must be a boolean")
	}
	return bookingdomain.DeleteOptions{ReleaseMessage: release != nil && *release}, nil
}
