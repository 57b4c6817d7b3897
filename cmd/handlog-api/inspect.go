package main

import (
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/handlog/internal/config"
	"github.com/MarcoPoloResearchLab/handlog/internal/database"
	"github.com/MarcoPoloResearchLab/handlog/internal/export"
	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/MarcoPoloResearchLab/handlog/internal/kvstore"
	"github.com/MarcoPoloResearchLab/handlog/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultExportPath = "hands.xlsx"

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the saved hands as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRecords(cmd)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No hands saved yet.")
				return nil
			}
			table, err := export.RenderTable(records)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var outputPath string
	command := &cobra.Command{
		Use:   "export",
		Short: "Write the saved hands to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRecords(cmd)
			if err != nil {
				return err
			}
			file, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			if err := export.WriteWorkbook(file, records); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d hands to %s\n", len(records), outputPath)
			return nil
		},
	}
	command.Flags().StringVarP(&outputPath, "output", "o", defaultExportPath, "Workbook output path")
	return command
}

func loadRecords(cmd *cobra.Command) ([]hands.HandRecord, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	defer logger.Sync() //nolint:errcheck

	handStore, closeStore, err := openHandStore(appConfig, logger)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	return handStore.Load(cmd.Context()), nil
}

func openHandStore(appConfig config.AppConfig, logger *zap.Logger) (*hands.Store, func(), error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := sqlDB.Close(); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}

	slots, err := kvstore.NewStore(kvstore.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	handStore, err := hands.NewStore(hands.StoreConfig{
		Slots:  slots,
		Key:    appConfig.StorageKey,
		Logger: logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return handStore, closeStore, nil
}
