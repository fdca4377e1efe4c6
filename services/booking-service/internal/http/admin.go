package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type MoneyHandler struct {
	withdrawals *service.WithdrawalSvc
	fees        *service.FeeSvc
	refunds     *service.RefundSvc
}

func NewMoneyHandler(w *service.WithdrawalSvc, f *service.FeeSvc, r *service.RefundSvc) *MoneyHandler {
	return &MoneyHandler{withdrawals: w, fees: f, refunds: r}
}

// GET /earnings?expert_id=... (expert_id honoured for admins)
func (h *MoneyHandler) Earnings(c *gin.Context) {
	e, err := h.withdrawals.Earnings(c.Request.Context(), callerOf(c), c.Query("expert_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// POST /withdrawals
func (h *MoneyHandler) RequestWithdrawal(c *gin.Context) {
	var in struct {
		Amount        decimal.Decimal `json:"amount" binding:"required"`
		PayoutAccount string          `json:"payout_account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	w, err := h.withdrawals.Request(c.Request.Context(), callerOf(c), service.WithdrawalInput{Amount: in.Amount, PayoutAccount: in.PayoutAccount})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// GET /withdrawals and GET /admin/withdrawals
func (h *MoneyHandler) ListWithdrawals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.withdrawals.List(c.Request.Context(), callerOf(c), c.Query("expert_id"),
		domain.WithdrawalStatus(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

type adminNote struct {
	Note         string `json:"note"`
	PayoutMethod string `json:"payout_method"`
	Reference    string `json:"reference"`
}

// POST /admin/withdrawals/:id/:action
func (h *MoneyHandler) MoveWithdrawal(c *gin.Context) {
	var in adminNote
	_ = c.ShouldBindJSON(&in)
	ctx, id := c.Request.Context(), c.Param("id")

	var (
		w   *domain.WithdrawalRequest
		err error
	)
	switch c.Param("action") {
	case "process":
		w, err = h.withdrawals.Process(ctx, id, in.Note)
	case "complete":
		w, err = h.withdrawals.Complete(ctx, id, in.PayoutMethod, in.Reference, in.Note)
	case "reject":
		w, err = h.withdrawals.Reject(ctx, id, in.Note)
	case "fail":
		w, err = h.withdrawals.Fail(ctx, id, in.Note)
	default:
		err = fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, c.Param("action"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /admin/fee-config
func (h *MoneyHandler) ActiveFee(c *gin.Context) {
	cfg, err := h.fees.Active(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// POST /admin/fee-config
func (h *MoneyHandler) ReplaceFee(c *gin.Context) {
	var in struct {
		FeePercent decimal.Decimal `json:"fee_percent" binding:"required"`
		MinFee     decimal.Decimal `json:"min_fee"`
		Currency   string          `json:"currency"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	cfg, err := h.fees.Replace(c.Request.Context(), callerOf(c), in.FeePercent, in.MinFee, in.Currency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// GET /admin/fee-config/history
func (h *MoneyHandler) FeeHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.fees.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// GET /admin/refunds?status=failed
func (h *MoneyHandler) RefundTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.refunds.Tasks(c.Request.Context(), domain.RefundTaskStatus(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// POST /admin/refunds/:booking_id/retry
func (h *MoneyHandler) RetryRefund(c *gin.Context) {
	t, err := h.refunds.Retry(c.Request.Context(), c.Param("booking_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
