package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusops/internal/borrowing"
	"campusops/internal/payment"
)

var errIdentityRequired = errors.New("identity_ref query parameter required")

// createPayment binds into payment.NewPayment, which has no status or
// remaining_amount field, so caller-supplied values are dropped.
func (h *Handler) createPayment(c *gin.Context) {
	var in payment.NewPayment
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.Payments.Create(c.Request.Context(), in, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) listPayments(c *gin.Context) {
	identity := c.Query("identity_ref")
	if identity == "" {
		badRequest(c, errIdentityRequired)
		return
	}
	list, err := h.Payments.ListByIdentity(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []payment.Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) updatePayment(c *gin.Context) {
	var patch payment.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.Payments.Update(c.Request.Context(), c.Param("id"), patch, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) payInstalment(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.Payments.Pay(c.Request.Context(), c.Param("id"), req.Amount, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createBorrowing(c *gin.Context) {
	var in borrowing.NewBorrowing
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.Borrowings.Create(c.Request.Context(), in, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) listBorrowings(c *gin.Context) {
	identity := c.Query("identity_ref")
	if identity == "" {
		badRequest(c, errIdentityRequired)
		return
	}
	list, err := h.Borrowings.ListByIdentity(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []borrowing.Borrowing{}
	}
	c.JSON(http.StatusOK, gin.H{"borrowings": list})
}

func (h *Handler) getBorrowing(c *gin.Context) {
	b, err := h.Borrowings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) updateBorrowing(c *gin.Context) {
	var patch borrowing.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.Borrowings.Update(c.Request.Context(), c.Param("id"), patch, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) returnBorrowing(c *gin.Context) {
	b, err := h.Borrowings.Return(c.Request.Context(), c.Param("id"), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
