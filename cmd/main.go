package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scholarly-ai/scholarly/cmd/service"
)

func main() {
	root := &cobra.Command{
		Use:   "scholarly",
		Short: "scholarly",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(service.NewCommand(), service.NewMigrateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
