package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"resultsync-backend/lib/osutil"
)

func init() {
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsStudentsCmd)
	rootCmd.AddCommand(recordsCmd)
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspects persisted course records.",
}

var recordsStudentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Prints every student with persisted records.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store, database := openStore(cfg)
		defer database.Close()

		students, err := store.Students(cmd.Context())
		if err != nil {
			osutil.Fatal("failed to list students", err)
		}
		for _, s := range students {
			fmt.Println(s)
		}
	},
}

var recordsListCmd = &cobra.Command{
	Use:   "list <student>",
	Short: "Prints the persisted course records of a student.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store, database := openStore(cfg)
		defer database.Close()

		recs, err := store.List(cmd.Context(), args[0])
		if err != nil {
			osutil.Fatal("failed to list records", err)
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Period", "Code", "Course", "Credits", "CA1", "CA2", "Exam", "Total", "Grade", "GP"})
		for _, r := range recs {
			t.AppendRow(table.Row{
				r.Period, r.Code, r.Name, r.Credits,
				r.CA1, r.CA2, r.Exam, r.Total, r.Grade, r.GradePoint,
			})
		}
		t.Render()
	},
}
