package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/replay"
)

var stateOrder = []classify.MachineState{
	classify.StateProduction,
	classify.StateHeating,
	classify.StateCooling,
	classify.StateIdle,
	classify.StateOff,
	classify.StateUnknown,
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "replay",
		Short: "Classify recorded extruder telemetry offline",
		Long: `Replays a recorded telemetry CSV through the state classifier with a
fresh engine, for threshold tuning and post-incident review. Results can
be written to a SQLite file and summarized later with the stats command.`,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var input string
	var configPath string
	var machine string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify a telemetry CSV in timestamp order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultThresholds()
			if configPath != "" {
				loaded, err := replay.LoadThresholds(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, rowErrs, err := replay.ReadLog(f)
			if err != nil {
				return err
			}
			if machine != "" {
				filtered := make([]replay.Row, 0, len(rows))
				for _, r := range rows {
					if r.Sample.MachineID == machine {
						filtered = append(filtered, r)
					}
				}
				rows = filtered
			}

			outcomes, report, err := replay.Run(rows, cfg)
			if err != nil {
				return err
			}
			printReport(report, rowErrs)

			if dbPath != "" {
				db, err := openResultDB(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				sink := replay.NewSink(db)
				if err := sink.Init(); err != nil {
					return err
				}
				if err := sink.WriteOutcomes(outcomes); err != nil {
					return err
				}
				fmt.Printf("wrote %d results to %s\n", len(outcomes), dbPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Telemetry CSV to classify")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML file with a thresholds mapping (defaults when omitted)")
	cmd.Flags().StringVarP(&machine, "machine", "m", "", "Only classify samples for this machine")
	cmd.Flags().StringVar(&dbPath, "db", "", "Write per-sample results to this SQLite file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func statsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a previous replay run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("no replay database at %s", dbPath)
			}
			db, err := openResultDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := replay.NewSink(db).Stats()
			if err != nil {
				return err
			}

			fmt.Printf("samples:     %d\n", stats.Samples)
			fmt.Printf("machines:    %d\n", stats.Machines)
			fmt.Printf("transitions: %d\n", stats.Transitions)
			for _, sc := range stats.States {
				share := 0.0
				if stats.Samples > 0 {
					share = float64(sc.Count) / float64(stats.Samples) * 100
				}
				fmt.Printf("  %-11s %6d  %5.1f%%\n", sc.State, sc.Count, share)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "replay.db", "SQLite file written by replay run")
	return cmd
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a thresholds file without classifying anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := replay.LoadThresholds(configPath)
			if err != nil {
				return err
			}
			if cerr := cfg.Validate(); cerr != nil {
				for _, d := range cerr.Details {
					fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", d.Field, d.Problem, d.Hint)
				}
				return fmt.Errorf("invalid thresholds in %s", configPath)
			}
			fmt.Println("thresholds valid")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML file with a thresholds mapping")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func printReport(report replay.Report, rowErrs []replay.RowError) {
	fmt.Printf("machines:    %d\n", report.Machines)
	fmt.Printf("samples:     %d\n", report.Samples)
	fmt.Printf("transitions: %d\n", report.Transitions)
	for _, st := range stateOrder {
		if n := report.StateCounts[st]; n > 0 {
			share := float64(n) / float64(report.Samples) * 100
			fmt.Printf("  %-11s %6d  %5.1f%%\n", st, n, share)
		}
	}
	if len(rowErrs) > 0 {
		fmt.Printf("invalid rows: %d\n", len(rowErrs))
		for _, re := range rowErrs {
			fmt.Printf("  %v\n", re)
		}
	}
	if len(report.Rejected) > 0 {
		fmt.Printf("rejected rows: %d\n", len(report.Rejected))
		for _, re := range report.Rejected {
			fmt.Printf("  %v\n", re)
		}
	}
}

// openResultDB opens the SQLite results file. Single writer; WAL keeps
// concurrent stats reads from blocking a run in progress.
func openResultDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
