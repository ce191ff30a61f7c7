package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/models"
)

type TaxConfigRequest struct {
	Name            string  `json:"name" binding:"required"`
	Rate            float64 `json:"rate" binding:"gte=0,lte=100"`
	ApplicationType string  `json:"application_type" binding:"required"`
	IsActive        *bool   `json:"is_active"`
	IsDefault       bool    `json:"is_default"`
	Description     string  `json:"description"`
}

func (r TaxConfigRequest) toInput() billing.TaxConfigInput {
	return billing.TaxConfigInput{
		Name:            r.Name,
		Rate:            r.Rate,
		ApplicationType: models.TaxApplicationType(r.ApplicationType),
		IsActive:        r.IsActive,
		IsDefault:       r.IsDefault,
		Description:     r.Description,
	}
}

func CreateTaxConfig(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CreateTaxConfig")
	defer span.End()

	var req TaxConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := TaxConfigs.Create(req.toInput())
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func ListTaxConfigs(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "ListTaxConfigs")
	defer span.End()

	var (
		configs []models.TaxConfig
		err     error
	)
	if c.Query("active") == "true" {
		configs, err = TaxConfigs.FindActive()
	} else {
		configs, err = TaxConfigs.FindAll()
	}
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func UpdateTaxConfig(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "UpdateTaxConfig")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tax config ID"})
		return
	}

	var req TaxConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := TaxConfigs.Update(uint(id), req.toInput())
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func DeleteTaxConfig(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "DeleteTaxConfig")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tax config ID"})
		return
	}

	if err := TaxConfigs.Remove(uint(id)); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tax config deleted"})
}

func SetDefaultTaxConfig(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "SetDefaultTaxConfig")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tax config ID"})
		return
	}

	cfg, err := TaxConfigs.SetDefault(uint(id))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
