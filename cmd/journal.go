package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/journal"
	"github.com/teemow/memorylane/internal/tools/batch"
)

// readImage loads a local file as a journal image with a data URL payload.
func readImage(path string) (journal.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return journal.Image{}, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return journal.Image{
		Data:     "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		FileName: filepath.Base(path),
	}, nil
}

func newUploadCmd() *cobra.Command {
	var (
		name     string
		mimeType string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images to Google Drive and print their links",
		Long: `Upload images to Google Drive and print their links.

With a single file the link is printed. With several files a JSON report
lists the link or error of each file, and the command fails if any upload
failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return fmt.Errorf("--name can only be used with a single file")
			}

			sc, _, err := cliContext(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			if _, err := sc.Authorize(cmd.Context()); err != nil {
				return err
			}

			upload := func(ctx context.Context, path string) (string, error) {
				img, err := readImage(path)
				if err != nil {
					return "", err
				}
				if name != "" {
					img.FileName = name
				}
				if mimeType != "" {
					img.MimeType = mimeType
				}
				return sc.Journal().UploadImage(ctx, img.Data, img.MimeType, img.FileName)
			}

			if len(args) == 1 {
				link, err := upload(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			}

			report := batch.Run(cmd.Context(), args, upload)
			fmt.Fprintln(cmd.OutOrStdout(), report.JSON())
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "File name in Drive (default: the local file name)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "MIME type (default: from the file extension)")
	return cmd
}

func newAppendCmd() *cobra.Command {
	var (
		memory     journal.Memory
		imagePaths []string
		imageLinks []string
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a memory to the journal sheet",
		Example: `  memorylane append --mood happy --note "first steps" --image steps.jpg
  memorylane append --date 2024-05-01 --note "zoo" --image-link https://drive.google.com/file/d/abc/view`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(imagePaths) > 0 && len(imageLinks) > 0 {
				return fmt.Errorf("use either --image or --image-link, not both")
			}
			if _, err := time.Parse(time.DateOnly, memory.Date); err != nil {
				return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", memory.Date)
			}

			images := make([]journal.Image, 0, len(imagePaths))
			for _, path := range imagePaths {
				img, err := readImage(path)
				if err != nil {
					return err
				}
				images = append(images, img)
			}

			sc, _, err := cliContext(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			if memory.CalculatedAge == "" {
				memory.CalculatedAge = sc.AgeOn(memory.Date)
			}
			if _, err := sc.Authorize(cmd.Context()); err != nil {
				return err
			}

			links := imageLinks
			if len(images) > 0 {
				links, err = sc.Journal().SaveMemory(cmd.Context(), memory, images)
			} else {
				err = sc.Journal().AppendRow(cmd.Context(), memory, links)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Memory for %s saved", memory.Date)
			if len(links) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " with %d image(s)", len(links))
			}
			fmt.Fprintln(cmd.OutOrStdout(), ".")
			for _, link := range links {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", link)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&memory.Date, "date", time.Now().Format(time.DateOnly), "Date of the memory (YYYY-MM-DD)")
	cmd.Flags().StringVar(&memory.Mood, "mood", "", "Mood of the child")
	cmd.Flags().StringVar(&memory.Note, "note", "", "Free-text note")
	cmd.Flags().StringVar(&memory.CalculatedAge, "age", "", "Age on the date (default: computed from the child's birthday in settings)")
	cmd.Flags().StringArrayVar(&imagePaths, "image", nil, "Image file to upload (repeatable)")
	cmd.Flags().StringArrayVar(&imageLinks, "image-link", nil, "Link of an image uploaded earlier (repeatable)")
	return cmd
}
