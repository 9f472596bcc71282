// Package scan implements the one-shot scan command.
package scan

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/promowatch/cmd/common"
	"github.com/jonesrussell/promowatch/internal/orchestrator"
)

// Command returns the scan command.
func Command() *cobra.Command {
	var redeem bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scrape cycle and print what was found",
		Long: `Runs a single scrape cycle over the enabled sources and prints a table
of the results. Codes are recorded and announced; pass --redeem to also
claim them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(viper.GetBool("app.debug"))
			if err != nil {
				return err
			}
			return run(cmd.Context(), deps, redeem)
		},
	}
	cmd.Flags().BoolVar(&redeem, "redeem", false, "claim found codes in the browser")

	return cmd
}

func run(ctx context.Context, deps *common.CommandDeps, redeem bool) error {
	pipeline, err := common.NewPipeline(ctx, deps, redeem)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	report := pipeline.Orchestrator.RunCycle(ctx)
	render(report)
	return nil
}

func render(report *orchestrator.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Post", "Result"})

	for _, src := range report.Sources {
		t.AppendRow(table.Row{src.Source, postCell(src), resultCell(src)})
	}
	t.Render()

	if len(report.Handled) == 0 {
		return
	}

	codes := table.NewWriter()
	codes.SetOutputMirror(os.Stdout)
	codes.SetStyle(table.StyleLight)
	codes.AppendHeader(table.Row{"Code", "Claim", "Announced"})
	for _, h := range report.Handled {
		claim := "skipped"
		if h.Outcome != nil {
			claim = string(h.Outcome.Status)
			if h.Outcome.Message != "" {
				claim += ": " + h.Outcome.Message
			}
		}
		codes.AppendRow(table.Row{h.Code, claim, h.Announced})
	}
	codes.Render()
}

func postCell(src orchestrator.SourceResult) string {
	if src.Post == nil {
		return text.FgHiBlack.Sprint("none")
	}
	return src.Post.URL
}

func resultCell(src orchestrator.SourceResult) string {
	switch {
	case src.Err != nil:
		return text.FgRed.Sprint(src.Err.Error())
	case src.Post == nil:
		return "no posts"
	case src.Skipped != "":
		return text.FgYellow.Sprint(src.Skipped)
	default:
		return text.FgGreen.Sprint("handled")
	}
}
