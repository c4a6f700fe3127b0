package commands

import (
	"encoding/csv"
	"log/slog"
	"os"
	"strconv"

	"procheck-sweep/lib/serviceutil"
	"procheck-sweep/lib/sqliteutil"
	"procheck-sweep/services/sweep"
	"procheck-sweep/services/sweep/db"

	"github.com/spf13/cobra"
)

var exportOut *string

func init() {
	exportOut = exportCmd.Flags().String("out", "data/agents.csv", "The CSV file to write.")
	rootCmd.AddCommand(exportCmd)
}

var csvColumns = []string{
	"name", "first_name", "middle_name", "last_name", "status",
	"brokerage", "city", "sector", "aka", "drill_id", "email", "phone",
	"quality_score",
}

var exportCmd = &cobra.Command{
	Use:   "export [--out <path/to/output.csv>]",
	Short: "Exports the results database to CSV for downstream consumers.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		database, err := sqliteutil.OpenDB(db.Schema, cfg.ResultsDb)
		if err != nil {
			serviceutil.Fatal("failed to open results db", err)
		}
		defer database.Close()

		agents, err := sweep.NewStore(database).ListAgents(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list agents", err)
		}

		out, err := os.Create(*exportOut)
		if err != nil {
			serviceutil.Fatal("failed to create output file", err)
		}
		defer out.Close()

		writer := csv.NewWriter(out)
		if err := writer.Write(csvColumns); err != nil {
			serviceutil.Fatal("failed to write csv", err)
		}
		for _, a := range agents {
			row := []string{
				a.FullName, a.FirstName, a.MiddleName, a.LastName,
				a.Status, a.Brokerage, a.City, a.Sector, a.AKA,
				a.DrillID, a.Email, a.Phone,
				strconv.Itoa(a.QualityScore),
			}
			if err := writer.Write(row); err != nil {
				serviceutil.Fatal("failed to write csv", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			serviceutil.Fatal("failed to write csv", err)
		}

		slog.Info("exported agents", "count", len(agents), "out", *exportOut)
	},
}
