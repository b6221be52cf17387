// Package handler exposes the HTTP surface of the API process.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusops/internal/attendance"
	"campusops/internal/auth"
	"campusops/internal/borrowing"
	"campusops/internal/payment"
	"campusops/internal/queue"
	"campusops/internal/renewal"
)

// Handler serves every route. Queue may be nil, in which case async renewal
// requests are refused.
type Handler struct {
	Renewal    *renewal.Engine
	Attendance *attendance.Service
	Payments   *payment.Service
	Borrowings *borrowing.Service
	Queue      queue.Queue
	Health     map[string]func(context.Context) bool
	Location   *time.Location
	Now        func() time.Time
}

// Middleware groups the request guards Register applies.
type Middleware struct {
	Authenticate gin.HandlerFunc
	// ScanLimit throttles scan submissions. Optional.
	ScanLimit gin.HandlerFunc
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine, mw Middleware) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	v1 := r.Group("/v1", mw.Authenticate)

	scan := []gin.HandlerFunc{}
	if mw.ScanLimit != nil {
		scan = append(scan, mw.ScanLimit)
	}
	v1.POST("/scans", append(scan, h.submitScan)...)
	v1.GET("/attendance", h.attendanceHistory)

	staff := v1.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	staff.GET("/occurrences/:id/token", h.currentToken)

	staff.POST("/payments", h.createPayment)
	staff.GET("/payments", h.listPayments)
	staff.GET("/payments/:id", h.getPayment)
	staff.PATCH("/payments/:id", h.updatePayment)
	staff.POST("/payments/:id/pay", h.payInstalment)

	staff.POST("/borrowings", h.createBorrowing)
	staff.GET("/borrowings", h.listBorrowings)
	staff.GET("/borrowings/:id", h.getBorrowing)
	staff.PATCH("/borrowings/:id", h.updateBorrowing)
	staff.POST("/borrowings/:id/return", h.returnBorrowing)

	admin := v1.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/renewals", h.triggerRenewal)
	admin.POST("/occurrences/:id/token", h.issueToken)
	admin.GET("/tokens", h.listTokens)
	admin.POST("/attendance", h.recordManual)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) loc() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

func isStaff(cl auth.Claims) bool {
	return cl.Role == auth.RoleStaff || cl.Role == auth.RoleAdmin
}
