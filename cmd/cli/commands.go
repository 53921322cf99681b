package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/transfer"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
)

// serviceOpener returns the registry and a function releasing it.
type serviceOpener func() (ports.TagService, func() error, error)

// cli holds state shared by every subcommand.
type cli struct {
	open    serviceOpener
	in      io.Reader
	out     io.Writer
	svc     ports.TagService
	release func() error
}

func newRootCommand(open serviceOpener, in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{open: open, in: in, out: out}

	root := &cobra.Command{
		Use:           "phonetags",
		Short:         "Administer the phone tag registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := c.open()
			if err != nil {
				return err
			}
			c.svc, c.release = svc, release
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.release == nil {
				return nil
			}
			return c.release()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(
		c.importCommand(),
		c.exportCommand(),
		c.lookupCommand(),
		c.searchCommand(),
		c.reportCommand(),
		c.statsCommand(),
	)
	return root
}

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "import <file|->",
		Short:   "Import phone;tag1,tag2 lines from a file or stdin",
		Args:    cobra.ExactArgs(1),
		Example: "  phonetags import tags.csv\n  cat tags.csv | phonetags import -",
		RunE: func(cmd *cobra.Command, args []string) error {
			src := c.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			n, err := c.svc.Import(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "imported %d tag pairs\n", n)
			return nil
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the registry in phone;tag1,tag2 format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return c.svc.Export(cmd.Context(), c.out)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := c.svc.Export(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (c *cli) lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <phone>",
		Short: "List the tags of a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := c.svc.ListTags(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, c.svc.NormalizePhone(args[0]))
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tID\tREPORTS")
			for _, t := range tags {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Tag, t.ID, t.ReportCount)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find phones whose number or tags contain the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.svc.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(c.out, "no matches")
				return nil
			}
			// Same line format as export.
			w := transfer.NewWriter(c.out)
			for _, g := range results {
				if err := w.Write(g); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
}

func (c *cli) reportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <tag-id>",
		Short: "Increment a tag's abuse report count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.svc.ReportTag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s;%s reports=%d\n", t.ID, t.Phone, t.Tag, t.ReportCount)
			return nil
		},
	}
}

func (c *cli) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "phones: %d\nassociations: %d\n", st.Phones, st.Associations)
			return nil
		},
	}
}
