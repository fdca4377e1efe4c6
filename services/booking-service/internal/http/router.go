package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	a "github.com/you/intella-booking/pkg/auth"
)

type RouterDeps struct {
	Verifier   *a.Verifier
	CronSecret string
	Logger     *slog.Logger
	Bookings   *BookingHandler
	Money      *MoneyHandler
	Webhooks   *WebhookHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(d.Logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// gateways authenticate with signatures, not bearer tokens
	r.POST("/razorpay/webhook", d.Webhooks.Razorpay)
	r.POST("/webhooks/omise", d.Webhooks.Omise)

	cron := r.Group("/bookings")
	cron.Use(CronAuth(d.Verifier, d.CronSecret))
	{
		cron.POST("/run-expiry-jobs", d.Bookings.RunExpiryJobs)
		cron.POST("/process-expiry-refunds", d.Bookings.ProcessExpiryRefunds)
	}

	secured := r.Group("")
	secured.Use(JWTAuth(d.Verifier))
	{
		bh := d.Bookings
		secured.POST("/bookings/create", RequireRole(a.RoleUser, a.RoleAdmin), bh.Create)
		secured.POST("/bookings/user-cancel", bh.UserCancel)
		secured.POST("/bookings/confirm-free", bh.ConfirmFree)
		secured.POST("/bookings/join", bh.Join)
		secured.GET("/bookings", bh.List)
		secured.GET("/bookings/:id", bh.Get)
		secured.GET("/bookings/:id/ledger", bh.Ledger)

		host := secured.Group("")
		host.Use(RequireRole(a.RoleHost, a.RoleAdmin))
		host.POST("/bookings/accept", bh.Accept)
		host.POST("/bookings/host-reject", bh.HostReject)
		host.POST("/bookings/host-cancel", bh.HostCancel)
		host.GET("/earnings", d.Money.Earnings)
		host.POST("/withdrawals", d.Money.RequestWithdrawal)
		host.GET("/withdrawals", d.Money.ListWithdrawals)
	}

	admin := r.Group("/admin")
	admin.Use(JWTAuth(d.Verifier), RequireRole(a.RoleAdmin))
	{
		mh := d.Money
		admin.GET("/withdrawals", mh.ListWithdrawals)
		admin.POST("/withdrawals/:id/:action", mh.MoveWithdrawal)
		admin.GET("/fee-config", mh.ActiveFee)
		admin.POST("/fee-config", mh.ReplaceFee)
		admin.GET("/fee-config/history", mh.FeeHistory)
		admin.GET("/refunds", mh.RefundTasks)
		admin.POST("/refunds/:booking_id/retry", mh.RetryRefund)
	}
	return r
}
