package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	web "fellowship/internal/adapters/http"
	"fellowship/internal/adapters/storage"
	announcementStore "fellowship/internal/adapters/storage/announcement"
	auditStore "fellowship/internal/adapters/storage/audit"
	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	messageStore "fellowship/internal/adapters/storage/message"
	pushStore "fellowship/internal/adapters/storage/push"
	"fellowship/internal/adapters/storage/schema"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/config"
)

// openDB connects to DATABASE_URL, registers plugins and brings the schema
// up to date.
// POST: on error nothing is left open
func openDB(cfg *config.Config, log *zap.SugaredLogger, plugins ...gorm.Plugin) (*gorm.DB, error) {
	driver, dsn := storage.ParseDatabaseURL(cfg.DatabaseURL)
	db, err := storage.Open(storage.Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
		SlowQuery:       cfg.SlowQuery(),
	}, log)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			_ = storage.Close(db)
			return nil, fmt.Errorf("failed to register %s: %w", p.Name(), err)
		}
	}
	if err := schema.Migrate(db); err != nil {
		_ = storage.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Infow("storage_event", "event", "store_ready", "driver", driver)
	return db, nil
}

func newStores(db *gorm.DB) web.Stores {
	return web.Stores{
		Members:       memberStore.NewGormStore(db),
		Events:        eventStore.NewGormStore(db),
		RSVPs:         eventStore.NewGormRSVPStore(db),
		Announcements: announcementStore.NewGormStore(db),
		Views:         announcementStore.NewGormViewStore(db),
		Messages:      messageStore.NewGormStore(db),
		Push:          pushStore.NewGormStore(db),
		Audit:         auditStore.NewGormStore(db),
	}
}

// seedAdmin makes sure ADMIN_EMAIL is an active admin when it is set.
func seedAdmin(ctx context.Context, cfg *config.Config, stores web.Stores, auditor *orchestrators.Auditor, log *zap.SugaredLogger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	res, err := orchestrators.ExecuteSeedAdmin(ctx, orchestrators.SeedAdminInput{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	}, orchestrators.SeedAdminDeps{
		MemberStore: stores.Members,
		Auditor:     auditor,
		GenerateID:  uuid.NewString,
		Now:         time.Now,
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	log.Infow("seed_event", "event", "admin_ready", "member_id", res.Member.ID, "created", res.Created)
	return nil
}
