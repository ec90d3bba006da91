package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
)

// ShowOptions configures Show.
type ShowOptions struct {
	Asset string
	Limit int
}

// Show prints the newest stored decisions of an asset.
func (a *App) Show(ctx context.Context, opts ShowOptions, w io.Writer) error {
	if opts.Asset == "" {
		return errors.New("asset is required")
	}

	store, closeStore, err := a.openDecisionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return showDecisions(ctx, store, opts, w)
}

func showDecisions(ctx context.Context, store storage.DecisionStore, opts ShowOptions, w io.Writer) error {
	records, err := store.ListByAsset(ctx, opts.Asset, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tConf%\tRisk\tAction\tSize\tSource\tExplanation")

	for _, r := range records {
		p := r.Signed.Payload
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339),
			formatFloat(p.Price, 4),
			formatFloat(bpsToPercent(p.ConfidenceRatioBps), 2),
			p.RiskScore,
			p.Action,
			formatFloat(r.SizeMultiplier, 2),
			sourceOf(r),
			sanitizeInline(r.Explanation),
		)
	}

	return writer.Flush()
}

func sourceOf(r *domain.DecisionRecord) string {
	if s := r.Source.String(); s != "" {
		return s
	}
	return "-"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
