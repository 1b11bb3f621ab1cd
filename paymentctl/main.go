package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operate the payment reconciliation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	root.AddCommand(createOrderCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(signCmd())
	root.AddCommand(outcomeCmd())
	return root
}
