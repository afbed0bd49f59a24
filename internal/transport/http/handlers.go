package transporthttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitepulse/analytics-api/internal/config"
	"github.com/sitepulse/analytics-api/internal/domain"
	"github.com/sitepulse/analytics-api/internal/ingest"
	"github.com/sitepulse/analytics-api/internal/platform/logger"
	spg "github.com/sitepulse/analytics-api/internal/storage/postgres"
)

// MetricsStore is the read side the metrics and readiness handlers need;
// *postgres.DB satisfies it.
type MetricsStore interface {
	Ready(ctx context.Context) error
	QueryTotals(ctx context.Context, slug *string, from, to int64) (spg.MetricsTotals, error)
	QueryBySlug(ctx context.Context, slug *string, from, to int64) ([]spg.SlugMetrics, error)
}

type ServerDeps struct {
	Cfg      config.Config
	Log      *logger.Logger
	Ingestor *ingest.Ingestor
	Store    MetricsStore
	Now      func() time.Time
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(c *gin.Context) {
	if err := d.Store.Ready(c.Request.Context()); err != nil {
		writeProblem(c, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// --- Events (batch) ---

// HandlePostEvents is the public ingestion boundary: a JSON body
// {"events": [...]}. Each element runs through validation independently, so
// one malformed event never discards its siblings; the validated subset is
// queued for aggregation. The acknowledgement keeps the historical
// status/echo fields, with echo carrying the validated count, and reports
// rejects separately.
func (d *ServerDeps) HandlePostEvents(c *gin.Context) {
	var req struct {
		Events *[]domain.RawEvent `json:"events"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Events == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events: required and must be an array"})
		return
	}

	valid, rejected, topErr := domain.ValidateBatch(*req.Events, d.Cfg.MaxBatchEvents, d.Now(), d.Cfg.ClockSkew)
	if topErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": topErr.Error()})
		return
	}

	for _, ev := range valid {
		if ok := d.Ingestor.Enqueue(ev); !ok {
			writeProblem(c, http.StatusServiceUnavailable, "overloaded", "ingest queue is full, please retry", nil)
			return
		}
	}
	d.Log.Info("batch queued",
		"request_id", c.GetString("request_id"), "accepted", len(valid), "rejected", len(rejected))

	resp := gin.H{"status": "accepted", "echo": len(valid), "rejected": len(rejected)}
	if m := domain.FieldErrorMap(rejected); m != nil {
		resp["errors"] = m
	}
	c.JSON(http.StatusAccepted, resp)
}

// --- Events (single) ---

func (d *ServerDeps) HandlePostEvent(c *gin.Context) {
	var raw domain.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, errs := domain.ValidateEvent(raw, d.Now(), d.Cfg.ClockSkew)
	if len(errs) > 0 {
		prob := map[string][]string{}
		for _, fe := range errs {
			prob[fe.Field] = append(prob[fe.Field], fe.Msg)
		}
		writeProblem(c, http.StatusBadRequest, "validation failed", "one or more fields are invalid", prob)
		return
	}
	if ok := d.Ingestor.Enqueue(ev); !ok {
		writeProblem(c, http.StatusServiceUnavailable, "overloaded", "ingest queue is full, please retry", nil)
		return
	}
	d.Log.Debug("event queued",
		"request_id", c.GetString("request_id"), "type", string(ev.Type), "slug", ev.Slug)

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// --- Metrics ---

type metricsResp struct {
	Totals spg.MetricsTotals `json:"totals"`
	Slugs  []spg.SlugMetrics `json:"slugs,omitempty"`
}

const defaultWindowSeconds = int64(24 * 60 * 60)  // last 24h default
const maxWindowSeconds = int64(90 * 24 * 60 * 60) // cap at 90 days (guardrail)

func (d *ServerDeps) HandleGetMetrics(c *gin.Context) {
	slug := strings.TrimSpace(c.Query("slug")) // optional
	fromStr := c.Query("from")                 // optional
	toStr := c.Query("to")                     // optional
	groupBy := c.Query("group_by")

	now := d.Now().Unix()
	var from, to int64
	var err error

	switch {
	case fromStr == "" && toStr == "":
		from, to = now-defaultWindowSeconds, now
	case fromStr != "" && toStr == "":
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			writeProblem(c, http.StatusBadRequest, "invalid parameters", "from must be epoch seconds", nil)
			return
		}
		to = now
	case fromStr == "" && toStr != "":
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			writeProblem(c, http.StatusBadRequest, "invalid parameters", "to must be epoch seconds", nil)
			return
		}
		from = to - defaultWindowSeconds
	default:
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			writeProblem(c, http.StatusBadRequest, "invalid parameters", "from must be epoch seconds", nil)
			return
		}
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			writeProblem(c, http.StatusBadRequest, "invalid parameters", "to must be epoch seconds", nil)
			return
		}
	}

	// guardrail: cap excessively large ranges
	if to-from > maxWindowSeconds {
		from = to - maxWindowSeconds
	}

	var slugPtr *string
	if slug != "" {
		slugPtr = &slug
	}

	ctx := c.Request.Context()
	tot, err := d.Store.QueryTotals(ctx, slugPtr, from, to)
	if err != nil {
		writeProblem(c, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}

	resp := metricsResp{Totals: tot}
	if groupBy == "slug" {
		bs, err := d.Store.QueryBySlug(ctx, slugPtr, from, to)
		if err != nil {
			writeProblem(c, http.StatusInternalServerError, "query error", err.Error(), nil)
			return
		}
		resp.Slugs = bs
	}

	c.JSON(http.StatusOK, resp)
}
