package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/nexus/pkg/model"
)

func connectionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connection",
		Aliases: []string{"conn"},
		Short:   "Manage tool connections",
	}
	cmd.AddCommand(connectionAddCmd(opts))
	cmd.AddCommand(connectionListCmd(opts))
	cmd.AddCommand(connectionTestCmd(opts))
	cmd.AddCommand(connectionRemoveCmd(opts))
	return cmd
}

func parseKind(name string, kinds []model.ToolKind) (model.ToolKind, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
		names = append(names, string(k))
	}
	return "", fmt.Errorf("unknown tool %q (one of %s)", name, strings.Join(names, ", "))
}

func connectionAddCmd(opts *globalOptions) *cobra.Command {
	var conn model.Connection
	var tool string
	var test bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a connection",
		Long: `Add a connection to a tracking tool.

Examples:
  nexus connection add --tool jira --url https://acme.atlassian.net --username pm@acme.com --api-key <token>
  nexus connection add --tool taskwarrior --url ~/.task
  nexus connection add --tool googletasks --api-key <refresh token from 'nexus auth google'>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			kind, err := parseKind(tool, a.conns.Registry().Kinds())
			if err != nil {
				return err
			}
			conn.Kind = kind
			conn = a.creds.Put(conn)
			if err := a.creds.Save(); err != nil {
				return err
			}
			fmt.Printf("Added connection %s (%s)\n", conn.ID, conn.Kind)

			if test {
				ctx, stop := signalContext()
				defer stop()
				updated, probe, err := a.conns.Test(ctx, conn.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", updated.Status, probe.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "tool kind (Jira, Trello, OpenProject, Rally, GoogleTasks, Taskwarrior)")
	cmd.Flags().StringVar(&conn.BaseURL, "url", "", "base URL, or the data directory for Taskwarrior")
	cmd.Flags().StringVar(&conn.Principal, "username", "", "user name, e-mail or API key id")
	cmd.Flags().StringVar(&conn.Password, "password", "", "password")
	cmd.Flags().StringVar(&conn.APIKey, "api-key", "", "API key or token")
	cmd.Flags().StringVar(&conn.Vendor, "vendor", "", "vendor the connection belongs to")
	cmd.Flags().BoolVar(&test, "test", false, "test the connection after adding it")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func connectionListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOOL\tSTATUS\tURL\tUSER\tLAST ERROR")
			for _, c := range a.creds.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Kind, c.Status, c.BaseURL, c.Principal, c.LastError)
			}
			return w.Flush()
		},
	}
}

func connectionTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <connection-id>",
		Short: "Test a connection and record its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()
			conn, probe, err := a.conns.Test(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", conn.ID, conn.Status, probe.Detail)
			if !probe.OK {
				return fmt.Errorf("connection %s is not usable", conn.ID)
			}
			return nil
		},
	}
}

func connectionRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <connection-id>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.creds.Remove(args[0]); err != nil {
				return err
			}
			if err := a.creds.Save(); err != nil {
				return err
			}
			fmt.Printf("Removed connection %s\n", args[0])
			return nil
		},
	}
}
