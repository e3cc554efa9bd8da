package models

import (
	"log"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &User{},
		&QboConnection{},
		&Product{}, &Account{}, &ProfitLossEntry{},
		&SyncRun{}, &SyncError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
