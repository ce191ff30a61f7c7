package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"factura/models"
)

func taxRouter() *gin.Engine {
	r := gin.Default()
	r.Use(ActorMiddleware())
	r.POST("/tax-configs", CreateTaxConfig)
	r.GET("/tax-configs", ListTaxConfigs)
	r.DELETE("/tax-configs/:id", DeleteTaxConfig)
	r.POST("/tax-configs/:id/set-default", SetDefaultTaxConfig)
	return r
}

func postTaxConfig(r *gin.Engine, req TaxConfigRequest) *httptest.ResponseRecorder {
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", "/tax-configs", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Platform-Operator", "true")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

func TestCreateTaxConfigEndpoint(t *testing.T) {
	db := setupTestEnv(t)
	r := taxRouter()

	w := postTaxConfig(r, TaxConfigRequest{
		Name:            "IVA 19%",
		Rate:            19,
		ApplicationType: "additional",
		IsDefault:       true,
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var saved models.TaxConfig
	assert.NoError(t, db.Where("name = ?", "IVA 19%").First(&saved).Error)
	assert.True(t, saved.IsDefault)
	assert.True(t, saved.IsActive)

	// unknown application types are rejected
	w = postTaxConfig(r, TaxConfigRequest{
		Name:            "Broken",
		Rate:            10,
		ApplicationType: "surcharge",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDefaultTaxConfigEndpoint(t *testing.T) {
	db := setupTestEnv(t)
	r := taxRouter()

	w := postTaxConfig(r, TaxConfigRequest{
		Name: "IVA 19%", Rate: 19, ApplicationType: "additional", IsDefault: true,
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var saved models.TaxConfig
	assert.NoError(t, db.Where("name = ?", "IVA 19%").First(&saved).Error)

	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/tax-configs/%d", saved.ID), nil)
	req.Header.Set("X-Platform-Operator", "true")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetDefaultTaxConfigEndpoint(t *testing.T) {
	db := setupTestEnv(t)
	r := taxRouter()

	assert.Equal(t, http.StatusCreated, postTaxConfig(r, TaxConfigRequest{
		Name: "IVA 19%", Rate: 19, ApplicationType: "additional", IsDefault: true,
	}).Code)
	assert.Equal(t, http.StatusCreated, postTaxConfig(r, TaxConfigRequest{
		Name: "IVA 5%", Rate: 5, ApplicationType: "additional",
	}).Code)

	var target models.TaxConfig
	assert.NoError(t, db.Where("name = ?", "IVA 5%").First(&target).Error)

	req, _ := http.NewRequest("POST", fmt.Sprintf("/tax-configs/%d/set-default", target.ID), nil)
	req.Header.Set("X-Platform-Operator", "true")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var defaults int64
	assert.NoError(t, db.Model(&models.TaxConfig{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)

	var reloaded models.TaxConfig
	assert.NoError(t, db.First(&reloaded, target.ID).Error)
	assert.True(t, reloaded.IsDefault)
}
