package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"cate-trust-layer/internal/domain"
)

// DefaultExportPoints caps exported rows when no limit is given.
const DefaultExportPoints = 500

// ExportOptions configures Export.
type ExportOptions struct {
	Asset     string
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// Export renders stored decisions of one asset as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Asset == "" {
		return errors.New("asset is required")
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultExportPoints
	}

	store, closeStore, err := a.openDecisionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	all, err := store.ListByTimeRange(ctx, from.Unix(), to.Unix())
	if err != nil {
		return err
	}
	records := make([]*domain.DecisionRecord, 0, len(all))
	for _, r := range all {
		if r.AssetID() == opts.Asset {
			records = append(records, r)
		}
	}
	if len(records) == 0 {
		a.Logger.Info().Str("asset", opts.Asset).Msg("no decisions found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeDecisionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeDecisionsPNG(opts.PNGPath, opts.Asset, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsampleRecords(records []*domain.DecisionRecord, max int) []*domain.DecisionRecord {
	if max <= 1 || len(records) <= max {
		return records
	}

	result := make([]*domain.DecisionRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeDecisionsCSV(path string, records []*domain.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "asset_id", "price", "confidence_ratio_pct", "risk_score", "action", "size_multiplier", "source", "nonce", "explanation"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		p := r.Signed.Payload
		record := []string{
			time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339),
			p.AssetID,
			formatFloat(p.Price, 6),
			formatFloat(bpsToPercent(p.ConfidenceRatioBps), 2),
			formatFloat(r.RiskScore, 2),
			p.Action.String(),
			formatFloat(r.SizeMultiplier, 4),
			r.Source.String(),
			strconv.FormatUint(p.Nonce, 10),
			r.Explanation,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDecisionsPNG(path, asset string, records []*domain.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	risk := make([]float64, len(records))
	size := make([]float64, len(records))
	ratio := make([]float64, len(records))

	for i, r := range records {
		x[i] = time.Unix(r.Timestamp(), 0).UTC()
		risk[i] = r.RiskScore
		size[i] = r.SizeMultiplier * 100
		ratio[i] = bpsToPercent(r.Signed.Payload.ConfidenceRatioBps)
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  asset,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Risk score / size (%)",
			ValueFormatter: pctFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Confidence ratio (%)",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Risk score",
				XValues: x,
				YValues: risk,
			},
			chart.TimeSeries{
				Name:    "Size multiplier %",
				XValues: x,
				YValues: size,
			},
			chart.TimeSeries{
				Name:    "Confidence ratio %",
				XValues: x,
				YValues: ratio,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func bpsToPercent(bps uint64) float64 {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(100)).InexactFloat64()
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
