package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tabcat/prollipop"
)

func init() {
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a tree from \"key value\" lines on stdin and print its root digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return fmt.Errorf("prollipop: create store dir: %w", err)
		}
		store := prollipop.NewFileBlockStore(storeDir)

		tree, err := prollipop.CreateEmptyTree(prollipop.WithAverage(average))
		if err != nil {
			return err
		}

		var updates []prollipop.Update
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			parts := strings.SplitN(line, " ", 2)
			if len(parts) != 2 {
				return fmt.Errorf("prollipop: malformed line %q, want \"key value\"", line)
			}
			updates = append(updates, prollipop.Insert([]byte(parts[0]), []byte(parts[1])))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("prollipop: read stdin: %w", err)
		}

		updatesCh := make(chan []prollipop.Update, 1)
		updatesCh <- updates
		close(updatesCh)

		diffs, result := prollipop.Mutate(cmd.Context(), store, tree, updatesCh)
		for range diffs {
		}
		res := <-result
		if res.Err != nil {
			return res.Err
		}

		fmt.Println(res.Tree.Root().Digest())
		return nil
	},
}
