// seed-admin creates or updates the platform admin user (username: qbsyncAdmin).
// Admin users have role = 'A' and may trigger syncs for any company.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

const (
	adminUsername = "qbsyncAdmin"
	adminName     = "QBSync Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	var company models.Company
	if err := db.WithContext(ctx).Model(&models.Company{}).Select("id").First(&company).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			created, err := models.CreateCompany(ctx, &models.NewCompany{Name: "QBSync Admin Co"})
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to create company: %v\n", err)
				os.Exit(1)
			}
			company = *created
		} else {
			fmt.Fprintf(os.Stderr, "failed to lookup company: %v\n", err)
			os.Exit(1)
		}
	}

	ctx = utils.SetCompanyIdInContext(ctx, company.ID)
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username:  adminUsername,
			Name:      adminName,
			Password:  hashedStr,
			IsActive:  utils.NewTrue(),
			Role:      models.UserRoleAdmin,
			CompanyId: company.ID,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=Admin)\n", adminUsername)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":   hashedStr,
		"name":       adminName,
		"is_active":  utils.NewTrue(),
		"company_id": company.ID,
		"role":       models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	_ = config.RemoveRedisKey("User:" + adminUsername)
	fmt.Printf("Updated admin user: username=%q (role=Admin)\n", adminUsername)
}
