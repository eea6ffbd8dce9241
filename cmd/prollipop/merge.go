package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabcat/prollipop"
)

func init() {
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge <root-digest-a> <root-digest-b>",
	Short: "Merge tree b into tree a and print the resulting root digest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := prollipop.NewFileBlockStore(storeDir)

		a, b, err := loadTreePair(cmd, store, args[0], args[1])
		if err != nil {
			return err
		}

		merged, err := prollipop.Merge(cmd.Context(), store, a, b)
		if err != nil {
			return err
		}

		fmt.Println(merged.Root().Digest())
		return nil
	},
}
