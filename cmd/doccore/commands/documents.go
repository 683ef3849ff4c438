package commands

import (
	"errors"
	"fmt"

	"doccore/internal/core"
	"doccore/internal/filter"
	"doccore/pkg/domain"

	"github.com/spf13/cobra"
)

// ErrNotFound is returned by get when no record has the requested id.
var ErrNotFound = errors.New("record not found")

func (c *CLI) newPutCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "put JSON",
		Short: "Insert or replace a record and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[0])
			if err != nil {
				return err
			}
			if id != "" {
				rec.SetDocumentID(id)
			}
			return c.withSession(cmd, func(s *core.Session) error {
				if err := core.StoreDocument(s, rec); err != nil {
					return err
				}
				if err := s.SaveChanges(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), rec.DocumentID())
				return err
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Record id (defaults to the JSON id field, or a new UUID)")
	return cmd
}

func (c *CLI) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print the record with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(s *core.Session) error {
				rec, err := core.Load[record](cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("%w: %s", ErrNotFound, args[0])
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func (c *CLI) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(s *core.Session) error {
				for _, id := range args {
					if err := core.Delete[record](s, id); err != nil {
						return err
					}
				}
				return s.SaveChanges(cmd.Context())
			})
		},
	}
}

type filterFlags struct {
	expr  string
	cel   string
	field []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.expr, "expr", "", "expr-lang predicate over top-level fields, e.g. 'value == 2'")
	cmd.Flags().StringVar(&f.cel, "cel", "", "CEL predicate over `doc`, e.g. 'doc.value == 2.0'")
	cmd.Flags().StringArrayVar(&f.field, "field", nil, "field=JSON equality predicate (repeatable, all must match)")
	cmd.MarkFlagsMutuallyExclusive("expr", "cel", "field")
}

func (f *filterFlags) build() (domain.Filter, error) {
	switch {
	case f.expr != "":
		return filter.Expr(f.expr)
	case f.cel != "":
		return filter.CEL(f.cel)
	case len(f.field) > 0:
		return fieldFilters(f.field)
	default:
		return filter.All(), nil
	}
}

func (c *CLI) newFirstCmd() *cobra.Command {
	var (
		flags     filterFlags
		orDefault bool
	)
	cmd := &cobra.Command{
		Use:   "first",
		Short: "Print the first matching record; fails when nothing matches unless --or-default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.build()
			if err != nil {
				return err
			}
			return c.withSession(cmd, func(s *core.Session) error {
				q := core.Query[record](s, f)
				var rec *record
				if orDefault {
					rec, err = q.FirstOrDefault(cmd.Context())
				} else {
					rec, err = q.First(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&orDefault, "or-default", false, "Print null instead of failing when nothing matches")
	return cmd
}

func (c *CLI) newListCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every matching record, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.build()
			if err != nil {
				return err
			}
			return c.withSession(cmd, func(s *core.Session) error {
				recs, err := core.Query[record](s, f).List(cmd.Context())
				if err != nil {
					return err
				}
				for _, rec := range recs {
					if err := printRecord(cmd.OutOrStdout(), rec); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}
