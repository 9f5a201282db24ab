package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/quiz"
)

// Quiz is the slice of quiz.Service the handlers call.
type Quiz interface {
	Start(ctx context.Context, req quiz.StartRequest) (quiz.StartResult, error)
	Answer(ctx context.Context, attemptID, itemID string, selected int) (quiz.AnswerResult, error)
	Abort(ctx context.Context, attemptID, reason string) error
	Progress(ctx context.Context, attemptID string) (quiz.Progress, error)
}

type QuizHandler struct {
	quiz Quiz
	log  *logging.Logger
}

func NewQuizHandler(q Quiz, log *logging.Logger) *QuizHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &QuizHandler{quiz: q, log: log.Named("api")}
}

type startRequest struct {
	SessionID string `json:"session_id" binding:"required,max=128"`
	QuizID    string `json:"quiz_id" binding:"omitempty,max=128"`
}

type startResponse struct {
	AttemptID string        `json:"attempt_id"`
	Item      quiz.ItemView `json:"item"`
}

// POST /v1/quiz/attempts
func (h *QuizHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errValidation)
		return
	}
	res, err := h.quiz.Start(c.Request.Context(), quiz.StartRequest{SessionID: req.SessionID, QuizID: req.QuizID})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, startResponse{AttemptID: res.AttemptID, Item: res.FirstItem})
}

type answerRequest struct {
	ItemID         string `json:"item_id" binding:"required"`
	SelectedOption *int   `json:"selected_option" binding:"required,gte=0"`
}

// POST /v1/quiz/attempts/:id/answers
func (h *QuizHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errValidation)
		return
	}
	res, err := h.quiz.Answer(c.Request.Context(), c.Param("id"), req.ItemID, *req.SelectedOption)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type abortRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=256"`
}

// POST /v1/quiz/attempts/:id/abort
func (h *QuizHandler) Abort(c *gin.Context) {
	var req abortRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errValidation)
			return
		}
	}
	ctx := c.Request.Context()
	if err := h.quiz.Abort(ctx, c.Param("id"), req.Reason); err != nil {
		h.fail(c, err)
		return
	}
	// A finished attempt stays finished; report whichever terminal state it is in.
	p, err := h.quiz.Progress(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": p.Status})
}

// GET /v1/quiz/attempts/:id
func (h *QuizHandler) Get(c *gin.Context) {
	p, err := h.quiz.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *QuizHandler) fail(c *gin.Context, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		h.log.Error("request failed", "route", c.FullPath(), "attempt_id", c.Param("id"), "error", err)
	} else {
		h.log.Debug("request rejected", "route", c.FullPath(), "code", e.code, "error", err)
	}
	respondError(c, e)
}
