package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Company struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type NewCompany struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("company name is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid company email")
	}
	company := Company{
		Name:  input.Name,
		Email: input.Email,
	}
	if err := config.GetDB().WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompanyById(ctx context.Context, id string) (*Company, error) {
	var company Company
	err := config.GetDB().WithContext(ctx).
		Where("id = ?", id).
		Take(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}
