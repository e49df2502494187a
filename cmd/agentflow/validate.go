package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/scheduler"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow...]",
		Short: "Check workflows for dependency errors without running them",
		Long: `Build each named workflow (all configured workflows when none are
given) and report unknown agent types, dependencies on types the workflow
never provides, and dependency cycles. Valid workflows are listed with their
agent types in dependency order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = catalog.Names()
			}

			out := cmd.OutOrStdout()
			var failed []string
			for _, name := range names {
				var graph *scheduler.Graph
				tmpl, err := catalog.Lookup(name)
				if err == nil {
					graph, err = scheduler.Build(name+"_validate", tmpl, nil)
				}
				if err != nil {
					failed = append(failed, name)
					fmt.Fprintf(out, "%s %s: %v\n", styleFailed.Render("✗"), name, err)
					continue
				}
				order := graph.TypeOrder()
				types := make([]string, len(order))
				for i, t := range order {
					types[i] = t.String()
				}
				fmt.Fprintf(out, "%s %s (%d tasks)\n", styleOK.Render("✓"), name, graph.Len())
				fmt.Fprintln(out, styleMuted.Render("  order: "+strings.Join(types, " -> ")))
			}

			if len(failed) > 0 {
				return fmt.Errorf("invalid workflows: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newTemplatesCmd(global *globalOptions) *cobra.Command {
	var agentFilter string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List configured workflows and their tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}

			names := catalog.Names()
			if agentFilter != "" {
				t, err := agent.ParseType(agentFilter)
				if err != nil {
					return err
				}
				names = catalog.FindByType(t)
			}
			if len(names) == 0 {
				return errors.New("no matching workflows")
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				tmpl, _ := catalog.Lookup(name)
				header := styleHeader.Render(name)
				if desc := cfg.Workflows[name].Description; desc != "" {
					header += styleMuted.Render("  " + desc)
				}
				fmt.Fprintln(out, header)
				for _, task := range tmpl.Tasks {
					line := fmt.Sprintf("  %-22s priority %2d", task.AgentType, task.Priority)
					if len(task.DependsOn) > 0 {
						deps := make([]string, len(task.DependsOn))
						for i, d := range task.DependsOn {
							deps[i] = d.String()
						}
						line += "  after " + strings.Join(deps, ", ")
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentFilter, "agent", "", "Only list workflows that use this agent type")
	return cmd
}
