// Package export writes report rows as Excel workbooks, CSV, JSON and HTML
// charts. The output format follows the file extension.
package export

import (
	"fmt"
	"os"
	"sort"

	"github.com/ramonehamilton/wfmarket-companion/internal/charts"
	"github.com/ramonehamilton/wfmarket-companion/internal/locale"
	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

// Settings controls how a report is written.
type Settings struct {
	Language   string // UI language of headers and notes
	TopN       int    // Sample size shown in live price headers
	Overwrite  bool
	PrettyJSON bool
}

// SetRecord is one line of the flat sets export: a set followed by its parts.
type SetRecord struct {
	RowType  string `csv:"row_type"`
	Set      string `csv:"set_url_name"`
	Category string `csv:"category"`
	URLName  string `csv:"url_name"`
	Name     string `csv:"item_name"`
	Link     string `csv:"link"`
	Quantity *int   `csv:"quantity_for_set"`

	Volume24h   *int     `csv:"volume_24h"`
	AvgPrice24h *float64 `csv:"avg_price_24h"`
	LivePrice   *float64 `csv:"live_price"`
	LiveDev     *float64 `csv:"live_price_deviation"`
	OrderCount  int      `csv:"order_count"`

	PartsSum24h  *float64 `csv:"parts_sum_24h"`
	PartsSumLive *float64 `csv:"parts_sum_live"`
	Delta24h     *float64 `csv:"delta_24h"`
	DeltaPct24h  *float64 `csv:"delta_pct_24h"`
	DeltaLive    *float64 `csv:"delta_live"`
	DeltaPctLive *float64 `csv:"delta_pct_live"`
}

// Row types of SetRecord.
const (
	RowTypeSet  = "set"
	RowTypePart = "part"
)

// SetRecords flattens sets into records, each set row followed by its parts.
func SetRecords(rows []reports.SetRow) []SetRecord {
	out := make([]SetRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, SetRecord{
			RowType:      RowTypeSet,
			Set:          r.URLName,
			Category:     string(r.Category),
			URLName:      r.URLName,
			Name:         r.Name,
			Link:         r.Link,
			Volume24h:    r.Volume24h,
			AvgPrice24h:  r.AvgPrice24h,
			LivePrice:    r.LivePrice,
			LiveDev:      r.LiveDev,
			OrderCount:   r.OrderCount,
			PartsSum24h:  r.PartsSum24h,
			PartsSumLive: r.PartsSumLive,
			Delta24h:     r.Delta24h,
			DeltaPct24h:  r.DeltaPct24h,
			DeltaLive:    r.DeltaLive,
			DeltaPctLive: r.DeltaPctLive,
		})
		for _, p := range r.Parts {
			qty := p.Quantity
			out = append(out, SetRecord{
				RowType:     RowTypePart,
				Set:         r.URLName,
				Category:    string(r.Category),
				URLName:     p.URLName,
				Name:        p.Name,
				Link:        p.Link,
				Quantity:    &qty,
				Volume24h:   p.Volume24h,
				AvgPrice24h: p.AvgPrice24h,
				LivePrice:   p.LivePrice,
				LiveDev:     p.LiveDev,
				OrderCount:  p.OrderCount,
			})
		}
	}
	return out
}

// WriteSets writes the Sets-vs-Parts report. XLSX gets one sheet per
// category, CSV gets flat records and JSON keeps parts nested in their set.
func WriteSets(path string, rows []reports.SetRow, s Settings) error {
	return write(path, s,
		func(w *Workbook) error { return w.AddSets(rows, s.TopN) },
		SetRecords(rows), rows)
}

// WriteMods writes the Mod Profitability report.
func WriteMods(path string, rows []reports.ModRow, s Settings) error {
	return write(path, s,
		func(w *Workbook) error { return w.AddMods(rows, s.TopN) },
		rows, rows)
}

// WriteEndo writes the Endo Candidates report.
func WriteEndo(path string, rows []reports.EndoRow, s Settings) error {
	return write(path, s,
		func(w *Workbook) error { return w.AddEndo(rows, s.TopN) },
		rows, rows)
}

// Combined holds every report of an "all" run. A nil slice omits that
// report; an empty one still gets its sheet.
type Combined struct {
	Sets []reports.SetRow  `json:"sets,omitempty"`
	Mods []reports.ModRow  `json:"mods,omitempty"`
	Endo []reports.EndoRow `json:"endo,omitempty"`

	SetsTopN int `json:"-"`
	ModsTopN int `json:"-"`
	EndoTopN int `json:"-"`
}

// WriteCombined writes every report into one XLSX workbook (sets sheets,
// then mods, then Endo) or one JSON document.
func WriteCombined(path string, c Combined, s Settings) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == FormatCSV {
		return fmt.Errorf("combined report cannot be written as CSV: use .xlsx or .json")
	}

	return write(path, s, func(w *Workbook) error {
		if err := w.AddSets(c.Sets, c.SetsTopN); err != nil {
			return err
		}
		if c.Mods != nil {
			if err := w.AddMods(c.Mods, c.ModsTopN); err != nil {
				return err
			}
		}
		if c.Endo != nil {
			if err := w.AddEndo(c.Endo, c.EndoTopN); err != nil {
				return err
			}
		}
		return nil
	}, nil, c)
}

// write dispatches on the extension of path.
func write(path string, s Settings, fill func(*Workbook) error, records, document any) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatXLSX:
		return writeWorkbook(path, s, fill)
	case FormatCSV:
		return NewExporter(Options{Format: FormatCSV, FilePath: path, Overwrite: s.Overwrite}).Export(records)
	default:
		return NewExporter(Options{Format: FormatJSON, FilePath: path, Overwrite: s.Overwrite, PrettyJSON: s.PrettyJSON}).Export(document)
	}
}

func writeWorkbook(path string, s Settings, fill func(*Workbook) error) (err error) {
	if _, statErr := os.Stat(path); statErr == nil && !s.Overwrite {
		return fmt.Errorf("file already exists: %s (use overwrite option to replace)", path)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	w, err := NewWorkbook(s.Language)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fill(w); err != nil {
		return err
	}
	return w.SaveAs(path)
}

// maxChartBars caps the number of bars in a chart.
const maxChartBars = 40

// WriteSetsChart renders the live set-minus-parts delta of each set, largest
// first. Sets without a live delta are left out.
func WriteSetsChart(path string, rows []reports.SetRow, s Settings) error {
	var points []charts.DataPoint
	for _, r := range rows {
		if r.DeltaLive != nil {
			points = append(points, charts.DataPoint{Label: r.Name, Value: *r.DeltaLive})
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Value > points[j].Value })

	config := charts.DefaultChartConfig()
	config.Title = locale.Format(s.Language, locale.ChartSets, "n", s.TopN)
	config.SeriesName = locale.Text(s.Language, locale.ChartDelta)
	return renderChart(path, points, config)
}

// WriteModsChart renders platinum per Endo in report order.
func WriteModsChart(path string, rows []reports.ModRow, s Settings) error {
	var points []charts.DataPoint
	for _, r := range rows {
		if r.PlatPerEndo != nil {
			points = append(points, charts.DataPoint{Label: r.Name, Value: *r.PlatPerEndo})
		}
	}

	config := charts.DefaultChartConfig()
	config.Title = locale.Text(s.Language, locale.ChartMods)
	config.SeriesName = locale.Text(s.Language, locale.ChartPlatEndo)
	return renderChart(path, points, config)
}

func renderChart(path string, points []charts.DataPoint, config charts.ChartConfig) error {
	if len(points) == 0 {
		return fmt.Errorf("nothing to chart")
	}
	if len(points) > maxChartBars {
		points = points[:maxChartBars]
	}
	return charts.RenderBarChart(points, config, path)
}
