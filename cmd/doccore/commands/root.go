// Package commands implements the doccore command line interface.
package commands

import (
	"context"
	"fmt"
	"io"

	"doccore/internal/core"

	"github.com/spf13/cobra"
)

// OpenOptions carries the global flags needed to build a service.
type OpenOptions struct {
	ConfigPath string
	Trace      io.Writer
}

// ServiceOpener builds the service a command runs against. The CLI closes
// the returned service when the command finishes.
type ServiceOpener func(ctx context.Context, opts OpenOptions) (*core.Service, error)

// CLI represents the command line interface for doccore.
type CLI struct {
	open    ServiceOpener
	rootCmd *cobra.Command

	configPath string
	trace      bool
}

// New creates a new CLI instance using open to reach the document store.
func New(open ServiceOpener) *CLI {
	rootCmd := &cobra.Command{
		Use:           "doccore",
		Short:         "Store and query JSON records through identity-mapped sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c := &CLI{open: open, rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML configuration file (DOCCORE_* variables override it)")
	rootCmd.PersistentFlags().BoolVar(&c.trace, "trace", false, "Write session operation spans as JSON lines to stderr")

	rootCmd.AddCommand(c.newPutCmd())
	rootCmd.AddCommand(c.newGetCmd())
	rootCmd.AddCommand(c.newDeleteCmd())
	rootCmd.AddCommand(c.newFirstCmd())
	rootCmd.AddCommand(c.newListCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// withSession opens a service and a session for one command invocation.
func (c *CLI) withSession(cmd *cobra.Command, fn func(*core.Session) error) (err error) {
	opts := OpenOptions{ConfigPath: c.configPath}
	if c.trace {
		opts.Trace = cmd.ErrOrStderr()
	}
	svc, err := c.open(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	s := svc.OpenSession()
	defer s.Close()
	return fn(s)
}
