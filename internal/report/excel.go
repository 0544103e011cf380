package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheet   = "Data"
	priceSheet  = "Price Chart"
	volumeSheet = "Volume Chart"

	numberFormat = "#,##0.00"
	dateFormat   = "yyyy-mm-dd"
)

var headers = []string{"Date", "Close", "Volume", "Open", "High", "Low", "Benchmark", "Market Cap", "Captured At"}

// ExcelRenderer writes the record history to an xlsx workbook with a data sheet and two chart sheets.
type ExcelRenderer struct {
	dir    string
	title  string
	charts bool
	now    func() time.Time
	logger logrus.FieldLogger
}

type Option func(*ExcelRenderer)

func WithClock(now func() time.Time) Option {
	return func(r *ExcelRenderer) { r.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *ExcelRenderer) { r.logger = l }
}

// WithCharts toggles the chart sheets; hosted runs skip them.
func WithCharts(on bool) Option {
	return func(r *ExcelRenderer) { r.charts = on }
}

func NewExcelRenderer(dir, title string, opts ...Option) *ExcelRenderer {
	r := &ExcelRenderer{
		dir:    dir,
		title:  title,
		charts: true,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FileName is the report file name for the given day.
func (r *ExcelRenderer) FileName(day time.Time) string {
	return fmt.Sprintf("%s_Report_%s.xlsx", r.title, day.Format("20060102"))
}

// Render sorts records ascending by date and writes the workbook, returning its path.
func (r *ExcelRenderer) Render(records []models.DailyRecord) (string, error) {
	if len(records) == 0 {
		return "", common.Newf(common.ErrRender, "no records to render")
	}
	rows := make([]models.DailyRecord, len(records))
	copy(rows, records)
	sort.Slice(rows, func(i, j int) bool { return rows[i].TradingDate.Before(rows[j].TradingDate) })

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return "", common.New(common.ErrRender, "rename data sheet", err)
	}
	if err := r.writeData(f, rows); err != nil {
		return "", common.New(common.ErrRender, "write data sheet", err)
	}
	if r.charts {
		if err := r.addCharts(f, len(rows)); err != nil {
			return "", common.New(common.ErrRender, "add charts", err)
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", common.New(common.ErrRender, "create report dir", err)
	}
	path := filepath.Join(r.dir, r.FileName(r.now()))
	if err := f.SaveAs(path); err != nil {
		return "", common.New(common.ErrRender, "save "+path, err)
	}

	r.logger.WithFields(logrus.Fields{"path": path, "rows": len(rows)}).Info("excel report generated")
	return path, nil
}

type styles struct {
	header, date, number, integer, text int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	dateFmt, numFmt := dateFormat, numberFormat

	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Border:    border,
		Font:      &excelize.Font{Bold: true, Family: "Calibri", Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"0066CC"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	}); err != nil {
		return s, err
	}
	if s.date, err = f.NewStyle(&excelize.Style{
		Border:       border,
		CustomNumFmt: &dateFmt,
		Alignment:    &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.number, err = f.NewStyle(&excelize.Style{
		Border:       border,
		CustomNumFmt: &numFmt,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
	}); err != nil {
		return s, err
	}
	if s.integer, err = f.NewStyle(&excelize.Style{
		Border:    border,
		NumFmt:    3, // #,##0
		Alignment: &excelize.Alignment{Horizontal: "right"},
	}); err != nil {
		return s, err
	}
	s.text, err = f.NewStyle(&excelize.Style{Border: border, Alignment: &excelize.Alignment{Horizontal: "center"}})
	return s, err
}

func (r *ExcelRenderer) writeData(f *excelize.File, rows []models.DailyRecord) error {
	st, err := newStyles(f)
	if err != nil {
		return err
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(dataSheet, "A1", &headers); err != nil {
		return err
	}

	for i, rec := range rows {
		values := []interface{}{
			rec.TradingDate.Time(),
			rec.ClosePrice.InexactFloat64(),
			rec.Volume,
			rec.OpenPrice.InexactFloat64(),
			rec.HighPrice.InexactFloat64(),
			rec.LowPrice.InexactFloat64(),
			nil,
			rec.MarketCapString(),
			rec.CapturedAt.Format("2006-01-02 15:04:05"),
		}
		display := []string{
			rec.TradingDate.String(),
			rec.ClosePrice.StringFixed(2),
			fmt.Sprintf("%d", rec.Volume),
			rec.OpenPrice.StringFixed(2),
			rec.HighPrice.StringFixed(2),
			rec.LowPrice.StringFixed(2),
			"",
			rec.MarketCapString(),
			values[8].(string),
		}
		if rec.BenchmarkPrice.Valid {
			values[6] = rec.BenchmarkPrice.Decimal.InexactFloat64()
			display[6] = rec.BenchmarkPrice.Decimal.StringFixed(2)
		}
		if rec.MarketCapitalization.Valid {
			values[7] = rec.MarketCapitalization.Decimal.InexactFloat64()
			display[7] = rec.MarketCapitalization.Decimal.StringFixed(2)
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(dataSheet, cell, &values); err != nil {
			return err
		}
		for c, s := range display {
			// thousands separators add roughly a third
			if n := utf8.RuneCountInString(s) * 4 / 3; n > widths[c] {
				widths[c] = n
			}
		}
	}

	last := len(rows) + 1
	ranges := []struct {
		from, to string
		style    int
	}{
		{"A1", "I1", st.header},
		{"A2", fmt.Sprintf("A%d", last), st.date},
		{"B2", fmt.Sprintf("B%d", last), st.number},
		{"C2", fmt.Sprintf("C%d", last), st.integer},
		{"D2", fmt.Sprintf("H%d", last), st.number},
		{"I2", fmt.Sprintf("I%d", last), st.text},
	}
	for _, rg := range ranges {
		if err := f.SetCellStyle(dataSheet, rg.from, rg.to, rg.style); err != nil {
			return err
		}
	}
	// a market cap of "N/A" is text; center it like the other text cells
	for i, rec := range rows {
		if !rec.MarketCapitalization.Valid {
			cell := fmt.Sprintf("H%d", i+2)
			if err := f.SetCellStyle(dataSheet, cell, cell, st.text); err != nil {
				return err
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(dataSheet, col, col, float64(w+2)); err != nil {
			return err
		}
	}
	return f.SetPanes(dataSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *ExcelRenderer) addCharts(f *excelize.File, n int) error {
	last := n + 1
	dates := fmt.Sprintf("%s!$A$2:$A$%d", dataSheet, last)
	series := func(col string) excelize.ChartSeries {
		return excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", dataSheet, col),
			Categories: dates,
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", dataSheet, col, col, last),
		}
	}
	axis := func(title string) excelize.ChartAxis {
		return excelize.ChartAxis{MajorGridLines: true, Title: []excelize.RichTextRun{{Text: title}}}
	}

	price := &excelize.Chart{
		Type:   excelize.Line,
		Series: []excelize.ChartSeries{series("B"), series("G")},
		Title:  []excelize.RichTextRun{{Text: r.title + " Price vs Benchmark"}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		XAxis:  axis("Date"),
		YAxis:  axis("Price"),
	}
	if err := f.AddChartSheet(priceSheet, price); err != nil {
		return err
	}

	volume := &excelize.Chart{
		Type:   excelize.Line,
		Series: []excelize.ChartSeries{series("C")},
		Title:  []excelize.RichTextRun{{Text: r.title + " Trading Volume"}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		XAxis:  axis("Date"),
		YAxis:  axis("Volume"),
	}
	if err := f.AddChartSheet(volumeSheet, volume); err != nil {
		return err
	}

	idx, err := f.GetSheetIndex(dataSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}
