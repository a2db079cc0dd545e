package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbergmann/pyABC/pkg/pyabc"
)

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List registered inference problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			infos, err := pyabc.Problems()
			if err != nil {
				return err
			}

			if jsonOut {
				type problemItem struct {
					Name        string `json:"name"`
					Description string `json:"description"`
					Models      int    `json:"models"`
				}
				items := make([]problemItem, 0, len(infos))
				for _, info := range infos {
					items = append(items, problemItem{
						Name:        info.Name,
						Description: info.Description,
						Models:      info.Models,
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "name=%s models=%d description=%q\n",
					info.Name, info.Models, info.Description)
			}
			return nil
		},
	}
}
