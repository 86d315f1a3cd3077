// Package judge proxies code-execution submissions to the external judge
// service on behalf of authenticated users.
package judge

import (
	"net/http"

	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/gin-gonic/gin"
)

// SubmissionRequest carries one code submission.
type SubmissionRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// SubmissionResponse is the execution output returned to the client.
type SubmissionResponse struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Time          string `json:"time"`
}

// JudgeController manages code-execution requests.
type JudgeController struct {
	runner i.CodeRunner
}

// NewJudgeController initializes a JudgeController.
func NewJudgeController(runner i.CodeRunner) (*JudgeController, error) {
	return &JudgeController{
		runner: runner,
	}, nil
}

// RegisterPublic registers public routes.
func (jc *JudgeController) RegisterPublic(route *gin.RouterGroup) {}

// RegisterProtected registers protected routes.
func (jc *JudgeController) RegisterProtected(route *gin.RouterGroup) {
	route.POST("/judge/submissions", jc.submit)
}

// submit forwards a submission to the judge and returns its output.
func (jc *JudgeController) submit(ctx *gin.Context) {
	var request SubmissionRequest
	if err := ctx.ShouldBind(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := jc.runner.Run(ctx.Request.Context(), request.Code, request.Language)
	if err != nil {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "judge unavailable"})
		return
	}

	ctx.JSON(http.StatusOK, SubmissionResponse{
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		CompileOutput: result.CompileOutput,
		Message:       result.Message,
		Time:          result.Time,
	})
}
