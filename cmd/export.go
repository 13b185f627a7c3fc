package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a channel's stored records",
	Long:  "Writes the stored records of --channel to {export.dir}/{channel}_leads_{date}.csv, optionally with an XLSX sibling and an FTP upload.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		channelID, _ := cmd.Flags().GetString("channel")
		columns, _ := cmd.Flags().GetString("columns")
		withXLSX, _ := cmd.Flags().GetBool("xlsx")
		upload, _ := cmd.Flags().GetBool("upload")
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			cfg.Export.Dir = dir
		}

		if channelID == "" {
			return eris.New("export: --channel is required")
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		reg, err := channel.NewRegistry(cfg.Channels.Dir)
		if err != nil {
			return eris.Wrap(err, "load channels")
		}
		profile, err := reg.Get(channelID)
		if err != nil {
			return err
		}

		cols, err := export.ColumnSet(columns)
		if err != nil {
			return eris.Wrapf(err, "export: choose one of %s", strings.Join(export.ColumnSetNames(), ", "))
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.LoadRecords(ctx, profile.ID)
		if err != nil {
			return eris.Wrap(err, "export: load records")
		}
		if len(records) == 0 {
			fmt.Fprintf(os.Stderr, "No stored records for %s.\n", profile.ID)
			return nil
		}

		now := time.Now()
		files := make([]string, 0, 2)

		csvPath, err := export.WriteCSVFile(cfg.Export.Dir, profile.ID, now, records, cols)
		if err != nil {
			return err
		}
		files = append(files, csvPath)

		if withXLSX || cfg.Export.XLSX {
			xlsxPath := filepath.Join(cfg.Export.Dir, export.FileName(profile.ID, now, "xlsx"))
			sheet := profile.SheetTab
			if sheet == "" {
				sheet = profile.Name
			}
			if err := export.WriteXLSX(xlsxPath, sheet, records, cols); err != nil {
				return err
			}
			files = append(files, xlsxPath)
		}

		if upload {
			if cfg.Export.FTP.Host == "" {
				return eris.New("export: --upload needs export.ftp.host")
			}
			up, err := export.NewFTPUploader(export.FTPOptions{
				Host:     cfg.Export.FTP.Host,
				User:     cfg.Export.FTP.User,
				Password: cfg.Export.FTP.Password,
				Dir:      cfg.Export.FTP.Dir,
			})
			if err != nil {
				return err
			}
			for _, f := range files {
				if err := up.Upload(ctx, f); err != nil {
					return eris.Wrapf(err, "export: upload %s", filepath.Base(f))
				}
				zap.L().Info("export: uploaded", zap.String("file", f), zap.String("remote", up.RemotePath(f)))
			}
		}

		for _, f := range files {
			fmt.Println(f)
		}
		zap.L().Info("export: complete",
			zap.String("channel", profile.ID),
			zap.Int("records", len(records)),
			zap.String("columns", columns),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("channel", "", "channel id to export")
	exportCmd.Flags().String("columns", "crm", "column set")
	exportCmd.Flags().String("dir", "", "output directory (default export.dir)")
	exportCmd.Flags().Bool("xlsx", false, "also write an XLSX workbook")
	exportCmd.Flags().Bool("upload", false, "upload the files to the configured FTP drop")
	rootCmd.AddCommand(exportCmd)
}
