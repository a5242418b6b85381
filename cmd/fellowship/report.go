package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fellowship/internal/adapters/export"
	"fellowship/internal/adapters/storage"
	"fellowship/internal/application/projections"
)

func reportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the health and events report as an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close(db) }()
			stores := newStores(db)

			report, err := projections.QueryAdminReport(cmd.Context(), projections.AdminReportDeps{
				Health: projections.HealthDeps{
					Ping:              func(ctx context.Context) error { return storage.Ping(ctx, db) },
					MemberStore:       stores.Members,
					EventStore:        stores.Events,
					AnnouncementStore: stores.Announcements,
					ViewStore:         stores.Views,
					AuditStore:        stores.Audit,
					Log:               log,
				},
				Events: projections.EventDeps{EventStore: stores.Events, RSVPStore: stores.RSVPs},
			}, time.Now())
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := export.WriteReportWorkbook(f, report); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			log.Infow("report_event", "event", "report_written", "path", out, "status", report.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "fellowship-report.xlsx", "output path")
	return cmd
}
