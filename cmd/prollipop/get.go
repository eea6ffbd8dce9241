package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabcat/prollipop"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <root-digest> <key>",
	Short: "Look up a key in the tree rooted at root-digest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := prollipop.NewFileBlockStore(storeDir)

		rootDigest, err := prollipop.ParseDigest(args[0])
		if err != nil {
			return err
		}

		tree, err := prollipop.LoadTree(cmd.Context(), store, rootDigest)
		if err != nil {
			return err
		}

		val, err := prollipop.Search(cmd.Context(), store, tree, []byte(args[1]))
		if err != nil {
			return err
		}

		fmt.Println(string(val))
		return nil
	},
}
