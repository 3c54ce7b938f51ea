package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage/filesystem"
)

// pageFlags list 与 search 共用的分页和筛选参数
type pageFlags struct {
	page      int
	pageSize  int
	recipient string
	sent      bool
	received  bool
	asJSON    bool
}

func (f *pageFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.page, "page", 1, "Page number")
	flags.IntVar(&f.pageSize, "page-size", domain.DefaultPageSize, "Page size (max 100)")
	flags.StringVar(&f.recipient, "recipient", "", "Only messages delivered to this user ID")
	flags.BoolVar(&f.sent, "sent", false, "Only sent messages")
	flags.BoolVar(&f.received, "received", false, "Only received messages")
	flags.BoolVar(&f.asJSON, "json", false, "Print the page as JSON")
	cmd.MarkFlagsMutuallyExclusive("sent", "received")
}

func (f *pageFlags) filter() domain.MessageFilter {
	filter := domain.MessageFilter{RecipientID: f.recipient}
	if f.sent || f.received {
		isSent := f.sent
		filter.IsSent = &isSent
	}
	return filter
}

func (f *pageFlags) print(w io.Writer, page *domain.MessagePage) error {
	if f.asJSON {
		return writeJSON(w, page)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECEIVED\tFROM\tTO\tSUBJECT")
	for _, msg := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID, msg.ReceivedAt.Format(time.RFC3339), msg.From.Text, msg.To.Text, msg.Subject)
	}
	fmt.Fprintf(tw, "\npage %d/%d, %d messages\n", page.CurrentPage, page.TotalPages, page.Total)
	return tw.Flush()
}

func newListCmd(c *cli) *cobra.Command {
	var f pageFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.components(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			page, err := comps.Query.ListPage(cmd.Context(), f.filter(), f.page, f.pageSize)
			if err != nil {
				return err
			}
			return f.print(cmd.OutOrStdout(), page)
		},
	}
	f.register(cmd)
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	var (
		f     pageFlags
		field string
	)

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Case-insensitive substring search over sender, recipients, subject and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.components(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			page, err := comps.Query.SearchFiltered(cmd.Context(), domain.SearchQuery{
				Term:   args[0],
				Field:  domain.SearchField(field),
				Filter: f.filter(),
			}, f.page, f.pageSize)
			if err != nil {
				return err
			}
			return f.print(cmd.OutOrStdout(), page)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&field, "field", "", "Restrict the search to from, to or subject")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var exportDir string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one message as JSON, optionally exporting its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.components(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			msg, err := comps.Query.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if exportDir != "" {
				for _, att := range msg.Attachments {
					path, err := filesystem.ExportAttachment(exportDir, att)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "exported %s\n", path)
				}
			}

			// 附件内容不打印，只保留元数据
			for _, att := range msg.Attachments {
				att.Content = nil
			}
			return writeJSON(cmd.OutOrStdout(), msg)
		},
	}
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Directory to write attachments into")
	return cmd
}
