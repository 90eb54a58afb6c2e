package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/metrics"
	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/oi"
)

const dateLayout = "2006-01-02"

// Store is the read side of the database the API serves.
type Store interface {
	oi.OptionStore
	QueryFutures(ctx context.Context, f database.FutureFilter) ([]models.FutureRaw, error)
	QueryStocks(ctx context.Context, f database.StockFilter) ([]models.StockRaw, error)
	Info(ctx context.Context) ([]models.TableInfo, error)
	TXODates(ctx context.Context) ([]time.Time, error)
	TXOChain(ctx context.Context, date time.Time, expiry string) ([]models.TXODailyQuote, error)
}

type Handler struct {
	store Store
	log   *logrus.Entry
}

func NewHandler(store Store, log *logrus.Logger) *Handler {
	return &Handler{store: store, log: log.WithField("component", "api")}
}

type RangeParams struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit,default=1000" binding:"min=0,max=100000"`
}

func (p RangeParams) dates() (from, to *time.Time, err error) {
	if from, err = parseDate(p.From); err != nil {
		return nil, nil, err
	}
	if to, err = parseDate(p.To); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

type OptionParams struct {
	RangeParams
	Product string `form:"product,default=TXO"`
	Expiry  string `form:"expiry"`
}

type FutureParams struct {
	RangeParams
	Product string `form:"product"`
}

type StockParams struct {
	RangeParams
	Symbol string `form:"symbol"`
}

type ReportParams struct {
	Product string  `form:"product,default=TXO"`
	Date    string  `form:"date"`
	From    string  `form:"from"`
	To      string  `form:"to"`
	ATM     string  `form:"atm,default=maxoi"`
	Window  int     `form:"window,default=10" binding:"min=0"`
	Step    float64 `form:"step,default=100" binding:"min=0"`
	Top     int     `form:"top,default=10" binding:"min=1"`
}

type ChainParams struct {
	Date   string `form:"date" binding:"required"`
	Expiry string `form:"expiry"`
}

var errInvalidDate = errors.New("invalid date format. Use YYYY-MM-DD")

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errInvalidDate
	}
	return &t, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handler) serverError(c *gin.Context, err error) {
	h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) GetOptions(c *gin.Context) {
	var params OptionParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}
	from, to, err := params.dates()
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.store.QueryOptions(c.Request.Context(), database.OptionFilter{
		Product: params.Product,
		Expiry:  params.Expiry,
		From:    from,
		To:      to,
		Limit:   params.Limit,
	})
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "data": rows})
}

func (h *Handler) GetFutures(c *gin.Context) {
	var params FutureParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}
	from, to, err := params.dates()
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.store.QueryFutures(c.Request.Context(), database.FutureFilter{
		Product: params.Product,
		From:    from,
		To:      to,
		Limit:   params.Limit,
	})
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "data": rows})
}

func (h *Handler) GetStocks(c *gin.Context) {
	var params StockParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}
	from, to, err := params.dates()
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.store.QueryStocks(c.Request.Context(), database.StockFilter{
		Symbol: params.Symbol,
		From:   from,
		To:     to,
		Limit:  params.Limit,
	})
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "data": rows})
}

func (h *Handler) GetDatabaseInfo(c *gin.Context) {
	infos, err := h.store.Info(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": infos})
}

func (h *Handler) GetOIReport(c *gin.Context) {
	var params ReportParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}

	q := oi.Query{Product: params.Product}
	var err error
	if q.Date, err = parseDate(params.Date); err != nil {
		badRequest(c, err)
		return
	}
	if q.From, err = parseDate(params.From); err != nil {
		badRequest(c, err)
		return
	}
	if q.To, err = parseDate(params.To); err != nil {
		badRequest(c, err)
		return
	}

	p := oi.DefaultParams()
	if p.ATM, err = oi.ParseATMMethod(params.ATM); err != nil {
		badRequest(c, err)
		return
	}
	p.WindowStrikes, p.StrikeStep, p.TopN = params.Window, params.Step, params.Top

	report, err := oi.BuildReport(c.Request.Context(), h.store, q, p)
	if errors.Is(err, database.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetTXODates(c *gin.Context) {
	dates, err := h.store.TXODates(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(dateLayout)
	}
	c.JSON(http.StatusOK, gin.H{"dates": out})
}

func (h *Handler) GetTXOChain(c *gin.Context) {
	var params ChainParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate(params.Date)
	if err != nil {
		badRequest(c, err)
		return
	}

	quotes, err := h.store.TXOChain(c.Request.Context(), *date, params.Expiry)
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(quotes), "data": quotes})
}

// SetupRoutes builds the read-only API. Request logs go through log.
func SetupRoutes(store Store, log *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithWriter(log.WriterLevel(logrus.DebugLevel)), gin.Recovery())

	h := NewHandler(store, log)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/options", h.GetOptions)
	api.GET("/futures", h.GetFutures)
	api.GET("/stocks", h.GetStocks)
	api.GET("/db/info", h.GetDatabaseInfo)
	api.GET("/oi/report", h.GetOIReport)
	api.GET("/txo/dates", h.GetTXODates)
	api.GET("/txo/chain", h.GetTXOChain)

	metrics.Init()
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
