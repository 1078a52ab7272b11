package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adstia/call-tagging/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk-import call records from a JSON file",
	Long:  "Reads a JSON array of call records and inserts them, skipping caller ids that already exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read import file %s", args[0])
		}
		var calls []model.Call
		if err := json.Unmarshal(data, &calls); err != nil {
			return eris.Wrapf(err, "parse import file %s", args[0])
		}
		if len(calls) == 0 {
			return eris.New("import file contains no calls")
		}
		for i, c := range calls {
			if c.CallerID == "" {
				return eris.Errorf("call at index %d has no caller_id", i)
			}
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		inserted, err := st.InsertCalls(cmd.Context(), calls)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d of %d calls (%d already present)\n", inserted, len(calls), len(calls)-inserted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
