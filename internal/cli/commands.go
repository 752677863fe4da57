package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"heritagestore/internal/core"
	"heritagestore/pkg/domain"
)

// NewDemoCommand seeds the sample collection and prints the derived views.
func NewDemoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Register a sample artifact with its loan, treatment and surrogate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				report, err := core.SeedDemo(ctx, s.svc)
				if err != nil {
					return err
				}
				return s.out.Print(report, func(w io.Writer) {
					fmt.Fprintln(w, "--- Artifact display status ---")
					writeStatus(w, report.Status)
					fmt.Fprintln(w, "\n--- Artifacts by material 'oil' ---")
					for _, a := range report.ByMaterial {
						fmt.Fprintf(w, "%s %s %s\n", a.ID, a.Title, optional(a.Material))
					}
					fmt.Fprintln(w, "\n--- Conservation by restorer ---")
					for _, c := range report.ByRestorer {
						fmt.Fprintf(w, "%s %s %s\n", c.ID, c.Date, c.Treatment)
					}
					fmt.Fprintln(w, "\n--- Digital surrogate preview ---")
					fmt.Fprintln(w, report.Preview.Text)
					if report.Preview.URL != "" {
						fmt.Fprintln(w, report.Preview.URL)
					}
				})
			})
		},
	}
}

// NewStatusCommand prints the display status of one artifact.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <artifact-id>",
		Short: "Show loan, current version and last conservation of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				st, err := s.svc.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Print(st, func(w io.Writer) { writeStatus(w, st) })
			})
		},
	}
}

// NewGetCommand prints one stored record.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a stored record",
		Long:  "Collections: " + collectionNames() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := domain.Collection(args[0])
			if !c.Valid() {
				return fmt.Errorf("%w: %q (want one of %s)", domain.ErrUnknownCollection, args[0], collectionNames())
			}
			return withSession(opts, cmd, func(_ context.Context, s *session) error {
				rec, ok, err := s.svc.Get(c, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return core.ErrNotFound{Collection: c, ID: args[1]}
				}
				return s.out.PrintRecord(rec)
			})
		},
	}
}

// NewTitleCommand resolves an artifact by title.
func NewTitleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "title <title>",
		Short: "Find an artifact by title, ignoring case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return withSession(opts, cmd, func(_ context.Context, s *session) error {
				a, ok, err := s.svc.ArtifactByTitle(title)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no artifact titled %q", title)
				}
				return s.out.Print(a, func(w io.Writer) { fmt.Fprintf(w, "%s %s\n", a.ID, a.Title) })
			})
		},
	}
}

// NewQueryCommand groups the collection scans.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Scan collections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "material <substring>",
		Short: "Artifacts whose material contains the substring, ignoring case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				arts, err := s.svc.ArtifactsByMaterial(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Print(arts, func(w io.Writer) {
					for _, a := range arts {
						fmt.Fprintf(w, "%s %s %s\n", a.ID, a.Title, optional(a.Material))
					}
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restorer <person-id>",
		Short: "Conservation records performed by a restorer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				recs, err := s.svc.ConservationByRestorer(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Print(recs, func(w io.Writer) {
					for _, c := range recs {
						fmt.Fprintf(w, "%s %s %s\n", c.ID, c.Date, c.Treatment)
					}
				})
			})
		},
	})
	return cmd
}

// NewIngestCommand stores a surrogate file and links it to an artifact.
func NewIngestCommand(opts *RootOptions) *cobra.Command {
	var fileType string
	cmd := &cobra.Command{
		Use:   "ingest <artifact-id> <file>",
		Short: "Store a digital surrogate file and attach it to an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifactID, path := args[0], args[1]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if fileType == "" {
				fileType = strings.TrimPrefix(filepath.Ext(path), ".")
			}
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				if _, ok, err := s.svc.Artifact(artifactID); err != nil || !ok {
					if err == nil {
						err = core.ErrNotFound{Collection: domain.CollectionArtifacts, ID: artifactID}
					}
					return err
				}
				d, _, err := s.svc.IngestSurrogate(ctx, core.DigitalSurrogate{FileRef: filepath.Base(path), FileType: fileType}, f)
				if err != nil {
					return err
				}
				d, _, err = s.svc.AttachSurrogate(ctx, artifactID, d)
				if err != nil {
					return err
				}
				return s.out.Print(d, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s %d bytes %s\n", d.ID, d.FileRef, d.SizeBytes, d.Checksum)
				})
			})
		},
	}
	cmd.Flags().StringVar(&fileType, "type", "", "file type (defaults to the file extension)")
	return cmd
}

// NewPreviewCommand describes a surrogate and links to its file.
func NewPreviewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <surrogate-id>",
		Short: "Describe a digital surrogate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				p, err := s.svc.SurrogatePreview(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Print(p, func(w io.Writer) {
					fmt.Fprintln(w, p.Text)
					if p.URL != "" {
						fmt.Fprintln(w, p.URL)
					}
				})
			})
		},
	}
}

func collectionNames() string {
	var names []string
	for _, c := range domain.Collections() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
