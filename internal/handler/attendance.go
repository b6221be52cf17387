package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusops/internal/attendance"
)

type scanRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) submitScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cl := claims(c)
	who := attendance.Identity{Ref: cl.Subject, DepartmentRef: cl.Department, YearLevel: cl.YearLevel}

	res, err := h.Attendance.Scan(c.Request.Context(), req.Code, who, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.CheckedOut {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"status":         res.Record.Status,
		"check_in_time":  res.Record.CheckInTime,
		"check_out_time": res.Record.CheckOutTime,
		"checked_out":    res.CheckedOut,
		"record":         res.Record,
	})
}

// attendanceHistory lists the caller's records. Staff may look up another
// identity with ?identity_ref=.
func (h *Handler) attendanceHistory(c *gin.Context) {
	cl := claims(c)
	identity := cl.Subject
	if ref := c.Query("identity_ref"); ref != "" && ref != identity {
		if !isStaff(cl) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		identity = ref
	}

	to := h.now()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.ParseInLocation(time.DateOnly, v, h.loc()); err != nil {
			badRequest(c, errors.New("from must be YYYY-MM-DD"))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.ParseInLocation(time.DateOnly, v, h.loc()); err != nil {
			badRequest(c, errors.New("to must be YYYY-MM-DD"))
			return
		}
	}

	recs, err := h.Attendance.History(c.Request.Context(), identity, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) recordManual(c *gin.Context) {
	var entry attendance.ManualEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Attendance.RecordManual(c.Request.Context(), entry, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
