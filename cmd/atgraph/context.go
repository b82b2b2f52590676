package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/cliconfig"
)

// newContextCmd manages the CLI's named control-plane endpoints via the
// `context {list|current|use|add|delete}` subcommands.
func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "manage saved control-plane endpoints",
	}
	cmd.AddCommand(
		newContextListCmd(),
		newContextCurrentCmd(),
		newContextUseCmd(),
		newContextAddCmd(),
		newContextDeleteCmd(),
	)
	return cmd
}

func newContextListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list saved contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cliconfig.Path()
			if err != nil {
				return err
			}
			f, err := cliconfig.Load(path)
			if err != nil {
				return err
			}
			for _, c := range f.Contexts {
				marker := " "
				if c.Name == f.Current {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\n", marker, c.Name, c.Address)
			}
			return nil
		},
	}
}

func newContextCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "print the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cliconfig.Path()
			if err != nil {
				return err
			}
			f, err := cliconfig.Load(path)
			if err != nil {
				return err
			}
			c, err := f.CurrentContext()
			if err != nil {
				return &notFoundError{msg: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Name, c.Address)
			return nil
		},
	}
}

func newContextUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cliconfig.Path()
			if err != nil {
				return err
			}
			f, err := cliconfig.Load(path)
			if err != nil {
				return err
			}
			if _, err := f.Find(args[0]); err != nil {
				return &notFoundError{msg: err.Error()}
			}
			f.Current = args[0]
			return cliconfig.Save(path, f)
		},
	}
}

func newContextAddCmd() *cobra.Command {
	var address, token string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "add or replace a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				return fmt.Errorf("--address is required")
			}
			path, err := cliconfig.Path()
			if err != nil {
				return err
			}
			f, err := cliconfig.Load(path)
			if err != nil {
				return err
			}
			f.Upsert(cliconfig.Context{Name: args[0], Address: address, Token: token})
			if f.Current == "" {
				f.Current = args[0]
			}
			return cliconfig.Save(path, f)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "control-plane base URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token")
	return cmd
}

func newContextDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "delete a saved context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cliconfig.Path()
			if err != nil {
				return err
			}
			f, err := cliconfig.Load(path)
			if err != nil {
				return err
			}
			if err := f.Delete(args[0]); err != nil {
				return &notFoundError{msg: err.Error()}
			}
			return cliconfig.Save(path, f)
		},
	}
}
