package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-extractor/cmd/paper-extractor/ui"
	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/pkg/extractor"
)

var (
	extractPage     int
	extractIdentify bool
	extractOutput   string
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Extract one page of a paper",
	Long: `Rasterize the first pages of a PDF, extract the markdown and figures of one
page, and optionally recognize the chemical structure in each figure.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVarP(&extractPage, "page", "n", 1, "page number to extract")
	extractCmd.Flags().BoolVar(&extractIdentify, "identify", false, "identify the chemical structure in every figure")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write markdown to this file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !verbose {
		cfg.Observability.LogLevel = "warn"
	}

	client, err := extractor.NewClientWithConfig(ctx, cfg, extractor.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	ui.Section("Paper Extraction")
	ui.KeyValue("File", args[0])
	ui.KeyValue("Page model", cfg.Extraction.PageModel)
	ui.Newline()

	res, err := loadWithProgress(ctx, client, args[0])
	if err != nil {
		return err
	}
	ui.Success("Rendered %d of %d pages", len(res.Rendered), res.TotalPages)
	ui.Debug("Session %s", res.SessionID)
	for _, n := range res.FailedPages {
		ui.Warning("Page %d could not be rendered", n)
	}

	if !slices.Contains(res.Rendered, extractPage) {
		return fmt.Errorf("page %d is not available (rendered: %v)", extractPage, res.Rendered)
	}

	page, err := processWithSpinner(ctx, client, extractPage)
	if err != nil {
		return err
	}

	if err := writeMarkdown(page.Content.Markdown); err != nil {
		return err
	}

	ui.Section(fmt.Sprintf("Figures on page %d", extractPage))
	if len(page.Content.Figures) == 0 {
		ui.Info("No figures detected")
	} else {
		ui.Table([]string{"ID", "Label", "Box", "Valid"}, figureRows(page.Content.Figures))
	}

	if extractIdentify && len(page.Content.Figures) > 0 {
		if err := identifyFigures(ctx, client, page); err != nil {
			return err
		}
	}

	ui.Newline()
	ui.Success("Done in %s", ui.FormatDuration(time.Since(start)))
	return nil
}

// loadWithProgress loads the document while advancing a bar on each page event.
func loadWithProgress(ctx context.Context, client *extractor.Client, path string) (*extractor.LoadResult, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, unsubscribe, err := client.Subscribe(subCtx)
	if err != nil {
		return nil, err
	}

	bar := ui.NewProgressBar(domain.MaxPages, "Rendering pages")
	counted := make(chan struct{})
	go func() {
		defer close(counted)
		for ev := range ch {
			switch ev.Type {
			case extractor.EventPageRendered, extractor.EventRenderFailed:
				bar.Add(1)
			case extractor.EventSessionLoaded:
				return
			}
		}
	}()

	res, err := client.LoadFile(ctx, path)
	if err != nil {
		unsubscribe()
		<-counted
		return nil, err
	}

	select {
	case <-counted:
	case <-time.After(time.Second):
	}
	unsubscribe()

	bar.SetTotal(int64(len(res.Rendered) + len(res.FailedPages)))
	bar.Finish()
	return res, nil
}

func processWithSpinner(ctx context.Context, client *extractor.Client, pageNumber int) (extractor.PageRecord, error) {
	spinner := ui.NewSpinner(fmt.Sprintf("Extracting page %d...", pageNumber))
	spinner.Start()
	defer spinner.Stop()

	done, err := client.ProcessPage(ctx, pageNumber)
	if err != nil {
		return extractor.PageRecord{}, err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return extractor.PageRecord{}, ctx.Err()
	}

	page, err := client.Page(pageNumber)
	if err != nil {
		return extractor.PageRecord{}, err
	}
	if page.Status != extractor.StatusDone || page.Content == nil {
		return extractor.PageRecord{}, fmt.Errorf("page %d failed: %s", pageNumber, page.LastError)
	}
	return page, nil
}

func writeMarkdown(markdown string) error {
	if extractOutput == "" {
		ui.Section("Markdown")
		fmt.Println(markdown)
		return nil
	}
	if err := os.WriteFile(extractOutput, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	ui.Success("Markdown saved to %s", extractOutput)
	return nil
}

func figureRows(figures []extractor.BoundingBox) [][]string {
	rows := make([][]string, 0, len(figures))
	for i, fig := range figures {
		valid := "yes"
		if err := fig.Validate(); err != nil {
			valid = "no"
		}
		rows = append(rows, []string{domain.FigureID(i), fig.Label, fig.String(), valid})
	}
	return rows
}

// identifyFigures runs recognition on each valid figure, one after another.
func identifyFigures(ctx context.Context, client *extractor.Client, page extractor.PageRecord) error {
	ui.Section("Chemical Structures")

	rows := make([][]string, 0, len(page.Content.Figures))
	for i, fig := range page.Content.Figures {
		if fig.Validate() != nil {
			ui.Warning("Skipping %s: invalid bounding box", domain.FigureID(i))
			continue
		}

		ui.Debug("Cropping %s at %s", domain.FigureID(i), fig.String())
		spinner := ui.NewSpinner(fmt.Sprintf("Identifying %s (%s)...", domain.FigureID(i), fig.Label))
		spinner.Start()
		done, err := client.IdentifyStructure(ctx, page.PageNumber, i)
		if err != nil {
			spinner.Stop()
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			spinner.Stop()
			return ctx.Err()
		}
		spinner.Stop()

		current, err := client.Page(page.PageNumber)
		if err != nil {
			return err
		}
		entry, ok := current.ChemistryResults[domain.FigureID(i)]
		if !ok {
			ui.Error("%s: recognition request failed", domain.FigureID(i))
			continue
		}
		rows = append(rows, []string{domain.FigureID(i), fig.Label, entry.SMILES, entry.Confidence})
	}

	if len(rows) > 0 {
		ui.Table([]string{"ID", "Label", "SMILES", "Confidence"}, rows)
	}
	return nil
}
