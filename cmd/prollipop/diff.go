package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabcat/prollipop"
)

func init() {
	rootCmd.AddCommand(diffCmd)
}

var diffCmd = &cobra.Command{
	Use:   "diff <root-digest-a> <root-digest-b>",
	Short: "Print the symmetric difference between two trees",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := prollipop.NewFileBlockStore(storeDir)

		a, b, err := loadTreePair(cmd, store, args[0], args[1])
		if err != nil {
			return err
		}

		diffs, result := prollipop.Diff(cmd.Context(), store, a, b)
		for d := range diffs {
			for _, e := range d.Entries {
				printEntryDiff(e)
			}
		}
		if res := <-result; res.Err != nil {
			return res.Err
		}
		return nil
	},
}

func printEntryDiff(e prollipop.EntryDiff) {
	switch e.Kind {
	case prollipop.EntryAdded:
		fmt.Printf("+ %s %s\n", e.New.Key, e.New.Val)
	case prollipop.EntryRemoved:
		fmt.Printf("- %s %s\n", e.Old.Key, e.Old.Val)
	case prollipop.EntryChanged:
		fmt.Printf("~ %s %s -> %s\n", e.Old.Key, e.Old.Val, e.New.Val)
	}
}

func loadTreePair(cmd *cobra.Command, store prollipop.BlockStore, aHex, bHex string) (*prollipop.Tree, *prollipop.Tree, error) {
	aDigest, err := prollipop.ParseDigest(aHex)
	if err != nil {
		return nil, nil, err
	}
	bDigest, err := prollipop.ParseDigest(bHex)
	if err != nil {
		return nil, nil, err
	}

	a, err := prollipop.LoadTree(cmd.Context(), store, aDigest)
	if err != nil {
		return nil, nil, err
	}
	b, err := prollipop.LoadTree(cmd.Context(), store, bDigest)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
