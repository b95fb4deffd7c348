package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"dietlog/metrics"
	"dietlog/middlewares"
	"dietlog/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type MealController struct {
	Meals   *services.MealService
	Summary *services.SummaryService
	Cookies *middlewares.SessionCookies
	Log     *logrus.Logger
}

func NewMealController(
	meals *services.MealService,
	summary *services.SummaryService,
	cookies *middlewares.SessionCookies,
	log *logrus.Logger,
) *MealController {
	return &MealController{Meals: meals, Summary: summary, Cookies: cookies, Log: log}
}

// POST /meals
func (h *MealController) Create(c *gin.Context) {
	var body services.MealInput
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, "create", fmt.Errorf("%w: %v", services.ErrValidation, err))
		return
	}

	meal, session, isNew, err := h.Meals.Create(c.Request.Context(), middlewares.SessionFrom(c), body)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	if isNew {
		if err := h.Cookies.Write(c, session); err != nil {
			h.fail(c, "create", err)
			return
		}
		metrics.RecordSessionMinted()
	}

	metrics.RecordMealOperation("create", "ok")
	c.JSON(http.StatusCreated, gin.H{"data": meal})
}

// GET /meals
func (h *MealController) List(c *gin.Context) {
	meals, err := h.Meals.List(c.Request.Context(), middlewares.SessionFrom(c))
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	metrics.RecordMealOperation("list", "ok")
	c.JSON(http.StatusOK, gin.H{"data": meals})
}

// GET /meals/:id
func (h *MealController) Get(c *gin.Context) {
	meal, err := h.Meals.Get(c.Request.Context(), c.Param("id"), middlewares.SessionFrom(c))
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	metrics.RecordMealOperation("get", "ok")
	c.JSON(http.StatusOK, gin.H{"data": meal})
}

// PUT|PATCH /meals/:id
func (h *MealController) Update(c *gin.Context) {
	var patch services.MealPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, "update", fmt.Errorf("%w: %v", services.ErrValidation, err))
		return
	}

	meal, err := h.Meals.Update(c.Request.Context(), c.Param("id"), middlewares.SessionFrom(c), patch)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	metrics.RecordMealOperation("update", "ok")
	c.JSON(http.StatusOK, gin.H{"data": meal})
}

// DELETE /meals/:id
func (h *MealController) Delete(c *gin.Context) {
	if err := h.Meals.Delete(c.Request.Context(), c.Param("id"), middlewares.SessionFrom(c)); err != nil {
		h.fail(c, "delete", err)
		return
	}
	metrics.RecordMealOperation("delete", "ok")
	c.Status(http.StatusNoContent)
}

// GET /meals/summary
func (h *MealController) GetSummary(c *gin.Context) {
	out, err := h.Summary.Summarize(c.Request.Context(), middlewares.SessionFrom(c))
	if err != nil {
		h.fail(c, "summary", err)
		return
	}
	metrics.RecordMealOperation("summary", "ok")
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// fail maps a service error onto the HTTP status contract.
func (h *MealController) fail(c *gin.Context, op string, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, services.ErrValidation):
		metrics.RecordMealOperation(op, "invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotOwner):
		metrics.RecordMealOperation(op, "not_owner")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized."})
	case errors.Is(err, services.ErrNotFound):
		metrics.RecordMealOperation(op, "not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
	default:
		metrics.RecordMealOperation(op, "error")
		h.Log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"meal_id": c.Param("id"),
		}).Error("meal operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
