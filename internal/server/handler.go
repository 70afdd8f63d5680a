package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"merlin/internal/logger"
	"merlin/internal/pipeline"
	"merlin/internal/types"
)

// Analyzer runs one analysis. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Run(ctx context.Context, req types.AnalysisRequest) (types.ResultBundle, error)
	Defaults() types.AnalysisRequest
}

type analysisQuery struct {
	Exchange    string `query:"exchange" validate:"max=32"`
	Symbol      string `query:"symbol" validate:"max=32"`
	Timeframe   string `query:"timeframe" validate:"max=8"`
	Limit       int    `query:"limit" validate:"gte=0"`
	NoSentiment bool   `query:"no_sentiment"`
	NoInsight   bool   `query:"no_insight"`
	// View "summary" drops the candle series from the reply.
	View        string `query:"view" default:"full" validate:"oneof=full summary"`
}

type analysisHandler struct {
	analyzer Analyzer
}

func (h *analysisHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/analysis", h.Analysis)
}

func (h *analysisHandler) Analysis(c echo.Context) error {
	q := &analysisQuery{}
	if verr := readAndValidate(c, q); verr != nil {
		return badRequestResponse(c, verr)
	}

	req := types.AnalysisRequest{
		Exchange:         q.Exchange,
		Symbol:           q.Symbol,
		Timeframe:        q.Timeframe,
		Limit:            q.Limit,
		DisableSentiment: q.NoSentiment,
		SkipInsight:      q.NoInsight,
	}
	if req.Limit == 0 {
		req.Limit = h.analyzer.Defaults().Limit
	}

	ctx := c.Request().Context()
	bundle, err := h.analyzer.Run(ctx, req)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return badRequestResponse(c, []ValidationError{{Code: "ERR_INVALID_REQUEST", Message: err.Error()}})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dataResponse(c, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		logger.ErrorWithErr(ctx, "Analysis failed", err)
		return dataResponse(c, http.StatusInternalServerError, nil)
	}

	if q.View == "summary" {
		bundle.Series.Candles = nil
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return successResponse(c, bundle)
}
