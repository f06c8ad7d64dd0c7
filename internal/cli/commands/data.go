package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/taskprovider/internal/cli/ui"
	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
)

// withProvider loads config, opens the provider and closes it after fn
func (o *rootOptions) withProvider(cmd *cobra.Command, fn func(ctx context.Context, p *provider.Provider) error) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := openProvider(ctx, cfg, nil)
	if err != nil {
		cmd.PrintErr(ui.ConfigError(err, o.noColor))
		return errReported
	}
	defer p.Close()

	return fn(ctx, p)
}

func newInsertCommand(opts *rootOptions) *cobra.Command {
	var (
		set     []string
		noInput bool
	)

	cmd := &cobra.Command{
		Use:   "insert [collection-uri]",
		Short: "Insert a row and print its identifier",
		Example: `  taskprovider insert --set description="buy milk" --set priority=1
  taskprovider insert com.example.android.todolist/tasks`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(set)
			if err != nil {
				return err
			}

			return opts.withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
				id, err := target(p, args)
				if err != nil {
					return err
				}

				if !noInput {
					if err := promptMissing(values); err != nil {
						return err
					}
				}

				created, err := p.Insert(ctx, id, values)
				if err != nil {
					return opts.report(cmd, err)
				}

				ui.WriteSuccess(cmd.OutOrStdout(), "created "+created.String(), opts.noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Column value as column=value (repeatable)")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Do not prompt for missing columns")
	return cmd
}

// promptMissing asks for the required task columns not already provided
func promptMissing(values contract.Values) error {
	if _, ok := values[contract.TaskEntry.ColumnDescription]; !ok {
		var description string
		prompt := &survey.Input{Message: "Description:"}
		if err := survey.AskOne(prompt, &description, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		values[contract.TaskEntry.ColumnDescription] = description
	}

	if _, ok := values[contract.TaskEntry.ColumnPriority]; !ok {
		var priority string
		prompt := &survey.Select{
			Message: "Priority:",
			Options: []string{"1", "2", "3"},
			Default: "1",
		}
		if err := survey.AskOne(prompt, &priority); err != nil {
			return err
		}
		n, _ := strconv.ParseInt(priority, 10, 64)
		values[contract.TaskEntry.ColumnPriority] = n
	}

	return nil
}

// filterFlags are shared by query, update and delete
type filterFlags struct {
	where   []string
	columns []string
	orderBy string
	desc    bool
	limit   int
}

func (f *filterFlags) selection() (contract.Selection, error) {
	return selection(f.where, f.columns, f.orderBy, f.desc, f.limit)
}

func (f *filterFlags) bindWhere(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "Equality filter as column=value (repeatable)")
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "query [uri]",
		Short: "Print the rows addressed by an identifier",
		Example: `  taskprovider query
  taskprovider query com.example.android.todolist/tasks/3
  taskprovider query --where priority=1 --sort description --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := filters.selection()
			if err != nil {
				return err
			}

			return opts.withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
				id, err := target(p, args)
				if err != nil {
					return err
				}

				rows, err := p.Query(ctx, id, sel)
				if err != nil {
					return opts.report(cmd, err)
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if rows == nil {
						rows = []contract.Row{}
					}
					return enc.Encode(rows)
				}

				ui.RenderRows(cmd.OutOrStdout(), rows, opts.noColor)
				return nil
			})
		},
	}

	filters.bindWhere(cmd)
	cmd.Flags().StringSliceVar(&filters.columns, "columns", nil, "Columns to return (comma separated)")
	cmd.Flags().StringVar(&filters.orderBy, "sort", "", "Column to sort by")
	cmd.Flags().BoolVar(&filters.desc, "desc", false, "Sort descending")
	cmd.Flags().IntVar(&filters.limit, "limit", 0, "Maximum rows to return")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	var (
		filters filterFlags
		set     []string
	)

	cmd := &cobra.Command{
		Use:     "update [uri]",
		Short:   "Update the rows addressed by an identifier",
		Example: `  taskprovider update com.example.android.todolist/tasks/3 --set priority=2`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(set)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return fmt.Errorf("at least one --set is required")
			}
			sel, err := filters.selection()
			if err != nil {
				return err
			}

			return opts.withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
				id, err := target(p, args)
				if err != nil {
					return err
				}

				n, err := p.Update(ctx, id, values, sel)
				if err != nil {
					return opts.report(cmd, err)
				}

				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("updated %d row(s)", n), opts.noColor)
				return nil
			})
		},
	}

	filters.bindWhere(cmd)
	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Column value as column=value (repeatable)")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var (
		filters filterFlags
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "delete [uri]",
		Short: "Delete the rows addressed by an identifier",
		Example: `  taskprovider delete com.example.android.todolist/tasks/3
  taskprovider delete --where priority=3
  taskprovider delete --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := filters.selection()
			if err != nil {
				return err
			}

			return opts.withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
				id, err := target(p, args)
				if err != nil {
					return err
				}

				// Refuse to empty a collection by accident
				if kind, _ := p.Classify(id); kind == provider.KindCollection && len(sel.Where) == 0 && !all {
					return fmt.Errorf("refusing to delete every row of %s without --all", id)
				}

				n, err := p.Delete(ctx, id, sel)
				if err != nil {
					return opts.report(cmd, err)
				}

				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("deleted %d row(s)", n), opts.noColor)
				return nil
			})
		},
	}

	filters.bindWhere(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Allow deleting every row of a collection")
	return cmd
}

func newTypeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "type <uri>",
		Short: "Print the content type of an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
				id, err := target(p, args)
				if err != nil {
					return err
				}

				kind, _ := p.Classify(id)
				mime, err := p.GetType(id)
				if err != nil {
					return opts.report(cmd, err)
				}

				ui.KeyValues(cmd.OutOrStdout(), [][2]string{
					{"uri", id.String()},
					{"kind", kind.String()},
					{"type", mime},
				}, opts.noColor)
				return nil
			})
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the configured tables",
		Long: `Create the configured tables if they do not exist. Databases at an older
schema version have their tables dropped and recreated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := store.Open(ctx, cfg.StoreConfig())
			if err != nil {
				cmd.PrintErr(ui.Format(ui.Message{
					Level:   ui.LevelError,
					Context: "migration failed",
					Problem: err.Error(),
					Hints:   []string{"Check database.driver and database.url: taskprovider config show"},
					NoColor: opts.noColor,
				}))
				return errReported
			}
			defer s.Close()

			ui.WriteSuccess(cmd.OutOrStdout(),
				fmt.Sprintf("schema at version %d (%s)", store.SchemaVersion, s.Dialect()), opts.noColor)
			return nil
		},
	}
}
