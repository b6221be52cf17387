package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusops/internal/attendance"
	"campusops/internal/borrowing"
	"campusops/internal/payment"
	"campusops/internal/schedule"
	"campusops/internal/store"
)

const codeStoreTimeout = "STORE_TIMEOUT"

var scanStatus = map[attendance.Code]int{
	attendance.CodeInvalidCode:   http.StatusNotFound,
	attendance.CodeTokenExpired:  http.StatusGone,
	attendance.CodeNotEntitled:   http.StatusForbidden,
	attendance.CodeDuplicateScan: http.StatusConflict,
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	var se *attendance.ScanError
	switch {
	case errors.As(err, &se):
		c.JSON(scanStatus[se.Code], gin.H{"error": se.Message, "code": se.Code})
	case errors.Is(err, store.ErrTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store timed out, retry", "code": codeStoreTimeout})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, attendance.ErrRecordExists),
		errors.Is(err, borrowing.ErrAlreadyReturned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrInvalid),
		errors.Is(err, payment.ErrOverpayment),
		errors.Is(err, borrowing.ErrInvalid),
		errors.Is(err, attendance.ErrInvalidEntry),
		errors.Is(err, schedule.ErrIncomplete):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
