package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/nexus/pkg/model"
)

func discoverCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <connection-id>",
		Short: "List projects visible through a connection that are not tracked yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()
			candidates, err := a.catalog.Discover(ctx, args[0])
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("No new projects.")
				return nil
			}
			printProjects(candidates)
			return nil
		},
	}
}

func admitCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "admit <connection-id> [project-id...]",
		Short: "Start tracking discovered projects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) < 2 {
				return fmt.Errorf("name the projects to admit, or pass --all")
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()
			candidates, err := a.catalog.Discover(ctx, args[0])
			if err != nil {
				return err
			}
			ids := args[1:]
			if all {
				ids = ids[:0]
				for _, p := range candidates {
					ids = append(ids, p.ID)
				}
			}

			result, err := a.catalog.Admit(ctx, ids)
			if err != nil {
				return err
			}
			for _, p := range result.Admitted {
				fmt.Printf("Admitted %s (%s)\n", p.ID, p.Name)
			}
			for _, id := range result.Skipped {
				fmt.Printf("Already tracked: %s\n", id)
			}
			for _, id := range result.Unknown {
				fmt.Printf("Not offered by the connection: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "admit every discovered project")
	return cmd
}

func syncCmd(opts *globalOptions) *cobra.Command {
	var onlyConnected bool
	cmd := &cobra.Command{
		Use:   "sync [project-id]",
		Short: "Sync one tracked project, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			if len(args) == 1 {
				res, err := a.reconciler.Sync(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d tasks, %d defects (%d new, %d replaced)\n",
					res.Project.ID, len(res.Tasks), len(res.Defects), res.Added, res.Removed)
				return nil
			}

			report, err := a.reconciler.SyncAll(ctx, onlyConnected)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tTASKS\tDEFECTS\tNEW\tRESULT")
			for _, o := range report.Outcomes {
				result := "ok"
				if o.Error != "" {
					result = o.Error
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", o.ProjectID, o.Tasks, o.Defects, o.Added, result)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed := report.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d projects failed to sync", failed, len(report.Outcomes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&onlyConnected, "connected", false, "skip projects whose connection is not Connected")
	return cmd
}

func printProjects(projects []model.Project) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tNAME\tSTATUS\tPROGRESS")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\n", p.ID, p.Key, p.Name, p.Status, p.Progress)
	}
	w.Flush()
}
