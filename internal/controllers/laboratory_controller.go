package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/utils"
)

type LaboratoryController struct {
	DB *gorm.DB
}

type createLaboratoryRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Code        string `json:"code" binding:"omitempty,max=64"`
	Description string `json:"description"`
	Status      string `json:"status" binding:"omitempty,oneof=active inactive"`
}

func (lc *LaboratoryController) List(c *gin.Context) {
	params := parseList(c, map[string]string{
		"id":         "id",
		"name":       "name",
		"code":       "code",
		"created_at": "created_at",
	}, "name")

	base := lc.DB.WithContext(c.Request.Context()).Model(&models.Laboratory{})
	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		like := "%" + q + "%"
		base = base.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		base = base.Where("status = ?", v)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		apperr.Respond(c, apperr.Transient("count laboratories", err))
		return
	}
	listQ := base.Session(&gorm.Session{}).Order(params.Order)
	if !params.All {
		listQ = listQ.Offset((params.Page - 1) * params.Limit).Limit(params.Limit)
	}
	var labs []models.Laboratory
	if err := listQ.Find(&labs).Error; err != nil {
		apperr.Respond(c, apperr.Transient("list laboratories", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": labs, "meta": params.meta(total)})
}

func (lc *LaboratoryController) Create(c *gin.Context) {
	var req createLaboratoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.FromBinding(err))
		return
	}
	status := req.Status
	if status == "" {
		status = "active"
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		generated, err := utils.GenerateCode(4)
		if err != nil {
			apperr.Respond(c, apperr.Transient("generate laboratory code", err))
			return
		}
		code = "LAB-" + generated
	}
	lab := models.Laboratory{
		Name:        strings.TrimSpace(req.Name),
		Code:        code,
		Description: req.Description,
		Status:      status,
	}

	var existing models.Laboratory
	err := lc.DB.WithContext(c.Request.Context()).Where("code = ?", lab.Code).First(&existing).Error
	if err == nil {
		apperr.Respond(c, apperr.Conflict("laboratory code %s already exists", lab.Code))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		apperr.Respond(c, apperr.Transient("check laboratory code", err))
		return
	}
	if err := lc.DB.WithContext(c.Request.Context()).Create(&lab).Error; err != nil {
		apperr.Respond(c, apperr.Transient("create laboratory", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Laboratory created", "laboratory": lab})
}
