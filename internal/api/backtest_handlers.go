package api

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"options-desk/internal/auth"
	apperrors "options-desk/internal/errors"
	"options-desk/internal/export"
	"options-desk/internal/models"
)

type backtestRequest struct {
	Name         string       `json:"name" binding:"required"`
	Description  string       `json:"description"`
	BacktestDate string       `json:"backtest_date" binding:"required"`
	Legs         []legRequest `json:"legs" binding:"required"`
}

// handleCreateBacktest creates a run and executes it synchronously.
// The response carries the terminal run state; a date with no
// recorded data yields 422 and a failed run.
func (s *Server) handleCreateBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	date, err := parseDate(req.BacktestDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "backtest_date must be YYYY-MM-DD"})
		return
	}

	run := &models.BacktestRun{
		UserID:       auth.UserID(c),
		Name:         req.Name,
		Description:  req.Description,
		BacktestDate: date,
	}
	for _, lr := range req.Legs {
		leg, err := lr.toLeg(0)
		if err != nil {
			s.writeError(c, err)
			return
		}
		run.Legs = append(run.Legs, leg.Leg())
	}

	ctx := c.Request.Context()
	if err := s.backtests.CreateRun(ctx, run); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.backtests.Execute(ctx, run); err != nil {
		if apperrors.Is(err, apperrors.ErrDataUnavailable) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"detail": err.Error(),
				"run":    run,
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, run)
}

func (s *Server) handleListBacktests(c *gin.Context) {
	runs, err := s.backtests.List(c.Request.Context(), auth.UserID(c), 100)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []models.BacktestRun{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetBacktest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	run, err := s.backtests.Get(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleBacktestResults(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	samples, err := s.backtests.Results(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if samples == nil {
		samples = []models.NetPremiumSample{}
	}
	c.JSON(http.StatusOK, samples)
}

func (s *Server) handleBacktestSummary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	summary, err := s.backtests.Summary(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleBacktestExport streams the sample series as a two-column CSV
// download.
func (s *Server) handleBacktestExport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	samples, err := s.backtests.Results(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, samples); err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(id)+`"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
