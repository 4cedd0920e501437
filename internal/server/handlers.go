package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/reporter"
	"gratuity-map-service/pkg/errors"
)

type loginRequest struct {
	Role     directory.Role `json:"role" binding:"required"`
	OM       string         `json:"om"`
	Password string         `json:"password"`
}

type editRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}

type passwordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": s.service.Store().Name()})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	if s.auth == nil {
		c.JSON(http.StatusOK, gin.H{"status": "success", "user": directory.Identity{Name: "Administrador", Role: directory.RoleAdmin}})
		return
	}

	id, err := s.auth.Authenticate(req.Role, strings.TrimSpace(req.OM), req.Password)
	if err != nil {
		s.logger.WithField("role", req.Role).WithField("om", req.OM).Warn("Login rejected")
		s.fail(c, errors.WrapIfNeeded(err, errors.CategoryAuth, errors.CodeBadCredentials, "invalid credentials"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "token": s.newSession(*id), "user": id})
}

func (s *Server) logout(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	s.sessionsMu.Lock()
	delete(s.sessions, token)
	s.sessionsMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// state loads the records as the current viewer sees them.
func (s *Server) state(c *gin.Context) (dashboard.State, bool) {
	st, err := s.service.Refresh(c.Request.Context(), dashboard.NewState(viewerOf(c)))
	if err != nil {
		s.fail(c, err)
		return st, false
	}
	return st, true
}

func (s *Server) listRecords(c *gin.Context) {
	var filters dashboard.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	st, ok := s.state(c)
	if !ok {
		return
	}
	st = st.WithFilter(filters)

	c.JSON(http.StatusOK, gin.H{
		"records":  st.Visible(),
		"summary":  st.Summary(),
		"units":    st.Units(),
		"statuses": st.Statuses(),
	})
}

func (s *Server) getRecord(c *gin.Context) {
	st, ok := s.state(c)
	if !ok {
		return
	}
	rec, found := st.Find(c.Param("id"))
	if !found {
		s.fail(c, errors.ValidationError(errors.CodeRecordMissing, "id", c.Param("id"), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":     rec,
		"rawHeaders": rec.Headers.Raw(),
		"editable":   s.service.EditableColumns(st, rec),
	})
}

func (s *Server) createRecord(c *gin.Context) {
	var form dashboard.NewMap
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	st, ok := s.state(c)
	if !ok {
		return
	}
	req, err := s.service.Create(c.Request.Context(), st, form)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "id": req.Fields[models.FieldID], "fields": req.Fields})
}

func (s *Server) diffRecord(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	st, ok := s.state(c)
	if !ok {
		return
	}
	_, cs, err := s.service.Diff(st, c.Param("id"), req.Values)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": cs, "empty": cs.IsEmpty()})
}

func (s *Server) updateRecord(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	st, ok := s.state(c)
	if !ok {
		return
	}
	cs, err := s.service.Update(c.Request.Context(), st, c.Param("id"), req.Values)
	if errors.IsNothingToUpdate(err) {
		c.JSON(http.StatusOK, gin.H{"status": "noop", "changes": models.ChangeSet{}})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "changes": cs})
}

func (s *Server) deleteRecord(c *gin.Context) {
	st, ok := s.state(c)
	if !ok {
		return
	}
	if err := s.service.Delete(c.Request.Context(), st, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) options(c *gin.Context) {
	st, ok := s.state(c)
	if !ok {
		return
	}
	aux, err := s.service.Options(c.Request.Context(), st)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, aux)
}

func (s *Server) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	if err := s.service.ChangePassword(c.Request.Context(), dashboard.NewState(viewerOf(c)), req.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) updateConfig(c *gin.Context) {
	var aux directory.Auxiliar
	if err := c.ShouldBindJSON(&aux); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	if err := s.service.UpdateConfig(c.Request.Context(), dashboard.NewState(viewerOf(c)), &aux); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) updateUsers(c *gin.Context) {
	var users directory.Users
	if err := c.ShouldBindJSON(&users); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid json"})
		return
	}
	if err := s.service.UpdateUsers(c.Request.Context(), dashboard.NewState(viewerOf(c)), &users); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

var reportContentTypes = map[reporter.OutputFormat]string{
	reporter.FormatJSON:    "application/json; charset=utf-8",
	reporter.FormatCSV:     "text/csv; charset=utf-8",
	reporter.FormatConsole: "text/plain; charset=utf-8",
	reporter.FormatXLSX:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (s *Server) report(c *gin.Context) {
	groupBy, err := models.ParseGroupBy(c.DefaultQuery("groupBy", "event"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	format := reporter.OutputFormat(strings.ToLower(c.DefaultQuery("format", string(reporter.FormatJSON))))
	if !format.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": fmt.Sprintf("unknown format %q", format)})
		return
	}

	st, ok := s.state(c)
	if !ok {
		return
	}
	st = st.WithGroupBy(groupBy).WithFilter(dashboard.Filters{
		Map:    c.Query("mapa"),
		Status: c.Query("status"),
		Unit:   c.Query("om"),
	})
	report := s.service.Report(st)

	if format == reporter.FormatJSON {
		c.JSON(http.StatusOK, report)
		return
	}

	cfg := reporter.DefaultReportConfig()
	cfg.Format = format
	gen, err := reporter.NewReportGenerator(cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	if format == reporter.FormatXLSX || format == reporter.FormatCSV {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=relatorio.%s", format))
	}
	c.Header("Content-Type", reportContentTypes[format])
	c.Status(http.StatusOK)
	if err := gen.GenerateReport(report, c.Writer); err != nil {
		s.logger.WithError(err).Error("Report rendering failed")
	}
}

// fail maps an error to a status code and a JSON body carrying the store's
// message untouched.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"status": "error", "message": err.Error()}

	if appErr, ok := errors.AsAppError(err); ok {
		body["message"] = appErr.Message
		body["code"] = appErr.Code
		switch {
		case appErr.Code == errors.CodeBadCredentials:
			status = http.StatusUnauthorized
		case appErr.Category == errors.CategoryAuth:
			status = http.StatusForbidden
		case appErr.Category == errors.CategoryConfiguration:
			status = http.StatusNotImplemented
		case appErr.Code == errors.CodeRecordMissing:
			status = http.StatusNotFound
		case appErr.Code == errors.CodeLockedField:
			status = http.StatusForbidden
		case appErr.Category == errors.CategoryValidation:
			status = http.StatusBadRequest
		case appErr.Category == errors.CategoryBackend:
			status = http.StatusBadGateway
		case appErr.Category == errors.CategoryNetwork:
			status = http.StatusGatewayTimeout
		}
	}

	s.logger.WithError(err).WithField("status", status).Warn("Request failed")
	c.JSON(status, body)
}
