package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusops/internal/queue"
	"campusops/internal/renewal"
	"campusops/internal/token"
)

func (h *Handler) currentToken(c *gin.Context) {
	tok, err := h.Renewal.Current(c.Request.Context(), c.Param("id"), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (h *Handler) issueToken(c *gin.Context) {
	tok, issued, err := h.Renewal.RenewOccurrence(c.Request.Context(), c.Param("id"), h.now(), "admin:"+claims(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if issued {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"token": tok, "issued": issued})
}

type renewalRequest struct {
	Cadence string `json:"cadence" binding:"required"`
	Async   bool   `json:"async"`
}

func (h *Handler) triggerRenewal(c *gin.Context) {
	var req renewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cadence, err := renewal.ParseCadence(req.Cadence)
	if err != nil {
		badRequest(c, err)
		return
	}

	if req.Async {
		if h.Queue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue not configured"})
			return
		}
		msg, err := queue.NewMessage(queue.TypeRenew, queue.RenewRequest{
			Cadence:     string(cadence),
			RequestedBy: claims(c).Subject,
			RequestedAt: h.now(),
		})
		if err == nil {
			err = h.Queue.Publish(c.Request.Context(), msg)
		}
		if err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not queue renewal"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "cadence": cadence})
		return
	}

	res, err := h.Renewal.Renew(c.Request.Context(), cadence, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cadence":     cadence,
		"renewed":     len(res.Renewed),
		"skipped":     len(res.Skipped),
		"failed":      len(res.Failed),
		"occurrences": res,
	})
}

// listTokens returns tokens whose expiry falls in [from, to). Both bounds are
// RFC 3339; the default window is the next 24 hours.
func (h *Handler) listTokens(c *gin.Context) {
	from := h.now()
	to := from.Add(24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, errors.New("from must be RFC 3339"))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, errors.New("to must be RFC 3339"))
			return
		}
	}
	if !to.After(from) {
		badRequest(c, errors.New("to must be after from"))
		return
	}

	toks, err := h.Renewal.Expiring(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if toks == nil {
		toks = []token.Token{}
	}
	c.JSON(http.StatusOK, gin.H{"tokens": toks})
}
