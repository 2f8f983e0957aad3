package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/internal/rag"
	"github.com/PixlGalaxy/EagleDocs/pkg/pdftext"
	"github.com/PixlGalaxy/EagleDocs/pkg/storage"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Inspect the document pipeline",
		Long:          `Extract text from course PDFs and build chunk indexes without running the API.`,
		SilenceUsage:  true,
	}
	root.AddCommand(newExtractCmd(), newChunkCmd())
	return root
}

func newExtractCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "extract [file.pdf]",
		Short: "Print the text recovered from a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pdf: %w", err)
			}
			text, stats := pdftext.ExtractWithStats(data)
			out := cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintf(out, "segments=%d inflated=%d inflate_failures=%d fallback=%t chars=%d\n",
					stats.Segments, stats.Inflated, stats.InflateFailures, stats.UsedFallback, len(text))
			}
			if text == "" {
				return fmt.Errorf("no text could be extracted from %s", args[0])
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the text")
	return cmd
}

type chunkOptions struct {
	course     string
	crn        string
	year       int
	instructor string
	out        string
	documentID string
	words      int
	perPage    int
}

func newChunkCmd() *cobra.Command {
	var opts chunkOptions
	cmd := &cobra.Command{
		Use:   "chunk [file.pdf]",
		Short: "Build a chunk index for a PDF",
		Long:  `Extracts the PDF, splits it into word windows and writes the index file under --out using the same layout as the API.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunk(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.course, "course", "", "Course code, e.g. COP3530")
	flags.StringVar(&opts.crn, "crn", "", "Course reference number")
	flags.IntVar(&opts.year, "year", 0, "Academic year")
	flags.StringVar(&opts.instructor, "instructor", "", "Instructor email")
	flags.StringVar(&opts.out, "out", "indexes", "Index root directory")
	flags.StringVar(&opts.documentID, "id", "", "Document id (random when empty)")
	flags.IntVar(&opts.words, "words", 0, "Words per chunk")
	flags.IntVar(&opts.perPage, "words-per-page", 0, "Words per estimated page")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func runChunk(cmd *cobra.Command, file string, opts chunkOptions) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	text, _ := pdftext.ExtractWithStats(data)
	if text == "" {
		return fmt.Errorf("no text could be extracted from %s", file)
	}

	files, err := storage.NewLocalStorage(opts.out)
	if err != nil {
		return err
	}
	if opts.documentID == "" {
		opts.documentID = uuid.NewString()
	}
	indexer := rag.NewIndexer(
		rag.NewChunker(rag.ChunkerConfig{WordsPerChunk: opts.words, WordsPerPage: opts.perPage}),
		rag.NewIndexStore(files, 1, zap.NewNop()),
	)
	res, err := indexer.Index(context.Background(), text, rag.DocumentMeta{
		DocumentID:      opts.documentID,
		DocumentName:    filepath.Base(file),
		CourseCode:      opts.course,
		CRN:             opts.crn,
		AcademicYear:    opts.year,
		InstructorEmail: opts.instructor,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chunks=%d pages=%d index=%s\n", res.ChunkCount, res.PageEstimate, filepath.Join(files.BaseDir(), res.IndexPath))
	return nil
}
