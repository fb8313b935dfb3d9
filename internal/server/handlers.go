package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/auth"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (server *Server) health(c *gin.Context) {
	degraded := map[string]string{}
	if server.deps.Health != nil {
		degraded = server.deps.Health.Degraded()
	}

	if len(degraded) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "degraded": degraded})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (server *Server) login(c *gin.Context) {
	var request loginRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		writeError(c, "Login", fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	err = server.deps.Authenticator.Authenticate(request.Username, request.Password)
	if err != nil {
		writeError(c, "Login", err)
		return
	}

	token, err := server.deps.Sessions.Issue(time.Now(), request.Username)
	if err != nil {
		writeError(c, "Login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token.AccessToken,
		"expiresAt":   token.ExpiresAt,
		"username":    request.Username,
	})
}

func (server *Server) session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": auth.Username(c)})
}

// startCall accepts variables either nested under "variables" or at the top
// level of the body.
func (server *Server) startCall(c *gin.Context) {
	var body map[string]any

	err := c.ShouldBindJSON(&body)
	if err != nil {
		writeError(c, "StartCall", fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	variables, ok := body["variables"].(map[string]any)
	if !ok {
		variables = body
	}

	scenarioID, _ := body["scenarioId"].(string)
	language, _ := body["language"].(string)

	result, err := server.deps.Calls.StartCall(c.Request.Context(), call.StartCallRequest{
		ScenarioID: scenarioID,
		Language:   language,
		Variables:  variables,
	})
	if err != nil {
		writeError(c, "StartCall", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (server *Server) liveCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": server.deps.LiveCalls.Snapshot(c.Request.Context())})
}

type endCallRequest struct {
	TelephonySID string `json:"telephonySid"`
}

func (server *Server) endCall(c *gin.Context) {
	var request endCallRequest

	if c.Request.ContentLength != 0 {
		err := c.ShouldBindJSON(&request)
		if err != nil {
			writeError(c, "EndCall", fmt.Errorf("%w: %w", ErrInvalidBody, err))
			return
		}
	}

	err := server.deps.Calls.EndCall(c.Request.Context(), c.Param("jobId"), request.TelephonySID)
	if err != nil {
		writeError(c, "EndCall", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type generateReportRequest struct {
	CallID string `json:"callId"`
}

func (server *Server) generateReport(c *gin.Context) {
	var request generateReportRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		writeError(c, "GenerateReport", fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	generated, err := server.deps.Reports.Generate(c.Request.Context(), request.CallID)
	if err != nil {
		writeError(c, "GenerateReport", err)
		return
	}

	c.JSON(http.StatusOK, generated)
}

func (server *Server) saveReport(c *gin.Context) {
	var body report.Report

	err := c.ShouldBindJSON(&body)
	if err != nil {
		writeError(c, "SaveReport", fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	saved, err := server.deps.Reports.Save(c.Request.Context(), &body)
	if err != nil {
		writeError(c, "SaveReport", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": saved})
}

func (server *Server) listReports(c *gin.Context) {
	summaries, err := server.deps.Reports.List(c.Request.Context())
	if err != nil {
		writeError(c, "ListReports", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func (server *Server) exportReports(c *gin.Context) {
	var buf bytes.Buffer

	err := server.deps.Reports.ExportXLSX(c.Request.Context(), &buf)
	if err != nil {
		writeError(c, "ExportReports", err)
		return
	}

	filename := fmt.Sprintf("call-reports-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (server *Server) getReport(c *gin.Context) {
	found, err := server.deps.Reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "GetReport", err)
		return
	}

	c.JSON(http.StatusOK, found)
}

func (server *Server) deleteReport(c *gin.Context) {
	err := server.deps.Reports.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "DeleteReport", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type generatePromptRequest struct {
	Description  string `json:"description"`
	ScenarioType string `json:"scenarioType"`
}

func (server *Server) generatePrompt(c *gin.Context) {
	var request generatePromptRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		writeError(c, "GeneratePrompt", fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	prompt, err := server.deps.Prompts.GenerateAgentPrompt(
		c.Request.Context(),
		strings.TrimSpace(request.Description),
		strings.TrimSpace(request.ScenarioType),
	)
	if err != nil {
		writeError(c, "GeneratePrompt", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (server *Server) randomQuestionGroup(c *gin.Context) {
	c.JSON(http.StatusOK, server.deps.QuestionGroups.RandomGroup(c.DefaultQuery("lang", "ar")))
}
