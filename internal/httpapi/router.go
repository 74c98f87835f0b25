// Package httpapi serves a small read-only status surface next to the bot:
// liveness, Prometheus metrics and the nomination snapshot.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/storage"
)

// Nominations is the read side of the nomination store.
type Nominations interface {
	Get(id string) (domain.Nomination, error)
	List() []domain.Nomination
}

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type nominationView struct {
	ID         string   `json:"id"`
	Nominator  string   `json:"nominator"`
	UserIDs    []string `json:"user_ids"`
	Users      []string `json:"users"`
	Medal      string   `json:"medal"`
	Reason     string   `json:"reason"`
	Status     string   `json:"status"`
	ResolvedBy string   `json:"resolved_by,omitempty"`
}

func viewOf(n domain.Nomination) nominationView {
	return nominationView{
		ID:         n.ID,
		Nominator:  n.Nominator,
		UserIDs:    n.UserIDs,
		Users:      n.Users,
		Medal:      n.Medal,
		Reason:     n.Reason,
		Status:     string(n.Status),
		ResolvedBy: n.ResolvedBy,
	}
}

// NewRouter builds the gin engine. gatherer backs /metrics.
func NewRouter(nominations Nominations, gatherer prometheus.Gatherer, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(Logger(log))
	r.Use(Recovery(log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/nominations", func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && !validStatus(status) {
			fail(c, http.StatusBadRequest, "bad_status", "status must be pending, approved or denied")
			return
		}

		out := []nominationView{}
		for _, n := range nominations.List() {
			if status != "" && string(n.Status) != status {
				continue
			}
			out = append(out, viewOf(n))
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/nominations/:id", func(c *gin.Context) {
		n, err := nominations.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fail(c, http.StatusNotFound, "not_found", "nomination not found")
				return
			}
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, "internal", "could not load nomination")
			return
		}
		c.JSON(http.StatusOK, viewOf(n))
	})

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "not_found", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

func validStatus(s string) bool {
	switch domain.Status(s) {
	case domain.StatusPending, domain.StatusApproved, domain.StatusDenied:
		return true
	}
	return false
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: msg})
}
