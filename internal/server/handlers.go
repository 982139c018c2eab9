package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/paveg/pivotgrid/internal/config"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/version"
	"github.com/paveg/pivotgrid/internal/viewer"
)

// ViewRequest is the body of POST /api/view.
type ViewRequest struct {
	viewer.Interaction
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ViewResponse is one rendered page of a run.
type ViewResponse struct {
	Grid         grid.Grid `json:"grid"`
	Page         grid.Page `json:"page"`
	Pivoted      bool      `json:"pivoted"`
	FilteredRows int       `json:"filtered_rows"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) buildInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Info())
}

func (s *Server) controls(c echo.Context) error {
	controls, err := s.session.Controls(c.Request().Context(), c.QueryParam("query"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, controls)
}

func intParam(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (s *Server) view(c echo.Context) error {
	var req ViewRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	page := intParam(c, "page", max(req.Page, 1))
	size := intParam(c, "page_size", req.PageSize)
	if size <= 0 {
		size = s.gridOpts.PageSize
	}
	size = min(size, config.MaxPageSize)

	res, err := s.session.Run(c.Request().Context(), req.Interaction)
	if err != nil {
		return err
	}
	defer res.Release()

	p, err := grid.Paginate(res.Data, page, size)
	if err != nil {
		return err
	}

	opts := s.gridOpts
	opts.PageSize = size
	return c.JSON(http.StatusOK, ViewResponse{
		Grid:         grid.Build(res.Data, opts, res.RowKeys...),
		Page:         p,
		Pivoted:      res.Pivoted,
		FilteredRows: res.FilteredRows,
	})
}

func (s *Server) export(c echo.Context) error {
	format, err := grid.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}

	var in viewer.Interaction
	if err := c.Bind(&in); err != nil {
		return err
	}

	var buf bytes.Buffer
	artifact, _, err := s.session.Export(c.Request().Context(), &buf, in, format)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	return c.Blob(http.StatusOK, artifact.ContentType, buf.Bytes())
}

func (s *Server) resetCache(c echo.Context) error {
	s.session.ResetCache()
	return c.JSON(http.StatusOK, map[string]int{"entries": s.session.Cache().Len()})
}

func (s *Server) metricsSummary(c echo.Context) error {
	if !s.metrics.IsEnabled() {
		return echo.NewHTTPError(http.StatusNotFound, "metrics are disabled")
	}
	return c.JSON(http.StatusOK, s.metrics.GetSummary())
}
