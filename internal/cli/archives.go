package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hitoshi/srikandi/internal/client"
	"github.com/hitoshi/srikandi/internal/model"
)

type listOptions struct {
	search string
	sort   string
	desc   bool
	page   int
}

func newListCommand(rt *runtime) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Tampilkan daftar arsip surat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.requireSession(cmd); err != nil {
				return err
			}
			if opts.sort != "" && !model.IsSortableColumn(opts.sort) {
				return fmt.Errorf("invalid sort column %q", opts.sort)
			}

			page, err := rt.client.ListArchives(cmd.Context(), client.ListQuery{
				Search: opts.search,
				Sort:   opts.sort,
				Desc:   opts.desc,
				Page:   opts.page,
			})
			if err != nil {
				return userMessage(err)
			}

			if rt.opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), toArchivePageJSON(page))
			}
			return printArchivePage(cmd, page)
		},
	}

	cmd.Flags().StringVarP(&opts.search, "search", "q", "", "search letter number, title or sender")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "sort column (created_at|letter_number|letter_date|sender)")
	cmd.Flags().BoolVar(&opts.desc, "desc", false, "sort descending")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "page number")
	return cmd
}

func printArchivePage(cmd *cobra.Command, page *model.ArchivePage) error {
	out := cmd.OutOrStdout()
	if len(page.Archives) == 0 {
		fmt.Fprintln(out, "Belum ada arsip surat.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NOMOR SURAT\tPERIHAL\tKATEGORI\tTANGGAL\tPENGIRIM/TUJUAN\tSTATUS\tFILE")
	for _, a := range page.Archives {
		file := "-"
		if a.FileURL != nil {
			file = *a.FileURL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.LetterNumber, a.Title, a.Category, a.LetterDate.Format("2006-01-02"), a.Sender, a.Status, file)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nMenampilkan %d-%d dari %d arsip (halaman %d/%d)\n",
		page.From(), page.To(), page.Total, page.Page, page.PageCount())
	return nil
}

type uploadOptions struct {
	number   string
	title    string
	category string
	date     string
	sender   string
	status   string
	file     string
}

// parseCategory は「masuk」「keluar」の省略形も受け付ける。
func parseCategory(s string) (model.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "masuk", strings.ToLower(string(model.CategoryIncoming)):
		return model.CategoryIncoming, nil
	case "keluar", strings.ToLower(string(model.CategoryOutgoing)):
		return model.CategoryOutgoing, nil
	}
	return "", fmt.Errorf("invalid category %q: must be masuk or keluar", s)
}

func newUploadCommand(rt *runtime) *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Catat arsip surat baru",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.requireSession(cmd); err != nil {
				return err
			}

			category, err := parseCategory(opts.category)
			if err != nil {
				return err
			}
			input := client.NewArchive{
				LetterNumber: opts.number,
				Title:        opts.title,
				Category:     category,
				LetterDate:   opts.date,
				Sender:       opts.sender,
				Status:       opts.status,
			}
			if opts.file != "" {
				data, err := os.ReadFile(opts.file)
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
				input.FileName = filepath.Base(opts.file)
				input.File = data
			}

			created, err := rt.client.CreateArchive(cmd.Context(), input)
			if err != nil {
				return userMessage(err)
			}

			if rt.opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), toArchiveJSON(created))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Arsip %s berhasil disimpan.\n", created.LetterNumber)
			if created.FileURL != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "File: %s\n", *created.FileURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.number, "number", "", "letter number (Nomor Surat)")
	cmd.Flags().StringVar(&opts.title, "title", "", "subject (Perihal)")
	cmd.Flags().StringVar(&opts.category, "category", "masuk", "category (masuk|keluar)")
	cmd.Flags().StringVar(&opts.date, "date", "", "letter date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.sender, "sender", "", "sender or recipient (Pengirim/Tujuan)")
	cmd.Flags().StringVar(&opts.status, "status", model.DefaultArchiveStatus, "status ("+strings.Join(model.ArchiveStatuses, "|")+")")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "PDF attachment")
	return cmd
}

func newSummaryCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Tampilkan ringkasan arsip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.requireSession(cmd); err != nil {
				return err
			}

			summary, err := rt.client.Summary(cmd.Context())
			if err != nil {
				return userMessage(err)
			}

			if rt.opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), summaryJSON{
					Incoming:  summary.Incoming,
					Outgoing:  summary.Outgoing,
					ThisMonth: summary.ThisMonth,
					Month:     int(summary.Month),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Surat Masuk:  %d\n", summary.Incoming)
			fmt.Fprintf(out, "Surat Keluar: %d\n", summary.Outgoing)
			fmt.Fprintf(out, "Bulan ini:    %d\n", summary.ThisMonth)
			return nil
		},
	}
}
