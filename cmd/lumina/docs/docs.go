// Package docscmder provides the docs command for attaching documents to a
// chat and querying them.
package docscmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/document"
	"github.com/papercomputeco/lumina/pkg/utils"
)

const docsLongDesc string = `Attach documents to a chat for retrieval augmented generation.

The server indexes uploaded documents; "lumina chat --docs" then lets the
model draw on them. Supported types: .pdf .docx .xlsx .pptx .txt .md .csv,
up to 50 MB each.

  lumina docs upload <chat-id> <file>...     Upload files
  lumina docs list <chat-id>                 List a chat's documents
  lumina docs show <chat-id> <doc-id>        Show one document
  lumina docs delete <chat-id> <doc-id>      Remove a document
  lumina docs search <chat-id> <query>       Retrieve matching chunks`

const docsShortDesc string = "Attach documents to chats"

// ErrUploadFailed is returned when at least one upload failed.
var ErrUploadFailed = errors.New("some documents failed to upload")

func NewDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: docsShortDesc,
		Long:  docsLongDesc,
	}

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <chat-id> <file>...",
		Short: "Upload files to a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				results := env.Client.UploadDocuments(ctx, args[0], args[1:])
				if PrintUploadResults(cmd.OutOrStdout(), results) > 0 {
					return ErrUploadFailed
				}
				return nil
			})
		},
	}
}

// PrintUploadResults prints one line per upload and returns the number of
// failures.
func PrintUploadResults(w io.Writer, results []client.UploadResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, r.Path, cliui.ErrorStyle.Render(r.Err.Error()))
			continue
		}

		doc := r.Response.Document
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(doc.Filename),
			cliui.DimStyle.Render(fmt.Sprintf("%s, %s", document.FormatSize(doc.SizeBytes), doc.Status)),
		)
	}
	return failed
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <chat-id>",
		Short: "List a chat's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				list, err := env.Client.ListDocuments(ctx, args[0])
				if err != nil {
					return env.Describe(err)
				}
				PrintDocuments(cmd.OutOrStdout(), list.Documents)
				return nil
			})
		},
	}
}

// PrintDocuments prints one line per document.
func PrintDocuments(w io.Writer, docs []document.Document) {
	if len(docs) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No documents."))
		return
	}

	for _, d := range docs {
		status := string(d.Status)
		if d.Status == document.StatusError && d.ErrorMessage != "" {
			status = cliui.ErrorStyle.Render(status + ": " + d.ErrorMessage)
		}
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			cliui.DimStyle.Render(d.ID),
			cliui.NameStyle.Render(d.Filename),
			cliui.ValueStyle.Render(document.FormatSize(d.SizeBytes)),
			status,
		)
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <chat-id> <doc-id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				d, err := env.Client.GetDocument(ctx, args[0], args[1])
				if client.IsNotFound(err) {
					return fmt.Errorf("document %q not found", args[1])
				}
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				row := func(k, v string) {
					if v != "" {
						fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-9s", k+":")), cliui.ValueStyle.Render(v))
					}
				}
				row("ID", d.ID)
				row("File", d.Filename)
				row("Type", d.MimeType)
				row("Size", document.FormatSize(d.SizeBytes))
				row("Status", string(d.Status))
				row("Error", d.ErrorMessage)
				if d.ChunkCount > 0 {
					row("Chunks", fmt.Sprint(d.ChunkCount))
				}
				if t := utils.ParseTimestamp(d.CreatedAt); !t.IsZero() {
					row("Added", t.Local().Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id> <doc-id>",
		Short: "Remove a document from a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				if err := env.Client.DeleteDocument(ctx, args[0], args[1]); err != nil {
					return env.Describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n", cliui.SuccessMark, args[1])
				return nil
			})
		},
	}
}

type searchCommander struct {
	topK int
}

func newSearchCmd() *cobra.Command {
	sc := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <chat-id> <query>",
		Short: "Retrieve the chunks of a chat's documents matching a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				resp, err := env.Client.SearchDocuments(ctx, args[0], strings.Join(args[1:], " "), sc.topK)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				if len(resp.Results) == 0 {
					fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No matches."))
					return nil
				}
				for i, r := range resp.Results {
					loc := r.Filename
					if r.PageNumber != nil {
						loc = fmt.Sprintf("%s p.%d", loc, *r.PageNumber)
					}
					fmt.Fprintf(out, "%d. %s %s\n", i+1, cliui.NameStyle.Render(loc), cliui.DimStyle.Render(fmt.Sprintf("(%.2f)", r.Score)))
					fmt.Fprintf(out, "   %s\n", cliui.PreviewStyle.Render(utils.Truncate(strings.Join(strings.Fields(r.Content), " "), 200)))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&sc.topK, "top-k", "k", client.DefaultTopK, "Number of chunks to retrieve")
	return cmd
}
