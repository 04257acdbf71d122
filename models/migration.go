package models

import (
	"log"

	"github.com/casaora/automation_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Organization{}, &OrganizationMember{}, &AppUser{},
		&Property{}, &Lease{},
		&CollectionRecord{}, &PaymentInstruction{},
		&Task{}, &AnomalyAlert{}, &ApplicationSubmission{},
		&MessageLog{},
		&NotificationEvent{}, &UserNotification{}, &PushToken{},
		&OwnerStatement{}, &Reservation{}, &Expense{}, &EscrowEvent{},
		&TriggerOutboxRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
