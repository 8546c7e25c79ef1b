package export

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/ramonehamilton/wfmarket-companion/internal/locale"
	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

// MaxSheetNameLength is the longest sheet name Excel accepts.
const MaxSheetNameLength = 31

const defaultSheet = "Sheet1"

var invalidSheetChars = regexp.MustCompile(`[:\\/?*\[\]]`)

// UniqueSheetName returns title cleaned up for use as a sheet name, cut to
// 31 characters and suffixed " 2", " 3"... when used already has it.
// The chosen name is added to used. Comparison ignores case, as Excel does.
func UniqueSheetName(title string, used map[string]struct{}) string {
	base := strings.TrimSpace(invalidSheetChars.ReplaceAllString(title, " "))
	if base == "" {
		base = "Sheet"
	}
	base = truncateRunes(base, MaxSheetNameLength)

	name := base
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(name)]; !taken {
			break
		}
		suffix := " " + strconv.Itoa(n)
		name = truncateRunes(base, MaxSheetNameLength-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = struct{}{}
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Workbook builds a localized report workbook. Sheets are added in call
// order; a workbook without report sheets is saved with a single "No data"
// sheet.
type Workbook struct {
	f      *excelize.File
	lang   string
	used   map[string]struct{}
	sheets []string
	st     styles
}

type styles struct {
	title, header, note         int
	setText, partText           int
	setLink, partLink           int
	setInt, partInt             int
	setPrice, partPrice         int
	setPct, partPct             int
	posPrice, negPrice          int
	posPct, negPct              int
	tableHeader, link           int
	number, ratio, integer, pct int
	unrankedMin, maxedMin       int
}

// NewWorkbook creates an empty workbook whose text is in lang.
func NewWorkbook(lang string) (*Workbook, error) {
	w := &Workbook{
		f:    excelize.NewFile(),
		lang: lang,
		used: make(map[string]struct{}),
	}
	if err := w.createStyles(); err != nil {
		_ = w.f.Close()
		return nil, err
	}
	return w, nil
}

const (
	colorGrey      = "D9D9D9"
	colorTitle     = "D8D8D8"
	colorLink      = "1155CC"
	colorPosFill   = "C6EFCE"
	colorPosFont   = "006100"
	colorNegFill   = "FFC7CE"
	colorNegFont   = "9C0006"
	colorHeader    = "1F4E78"
	colorNote      = "555555"
	colorLowFill   = "FFF5CC"
	colorHighFill  = "FDE9D9"
	fmtInteger     = "#,##0"
	fmtPrice       = "#,##0.00"
	fmtRatio       = "#,##0.0000"
	fmtPercent     = `0.00"%"`
	sheetZoomScale = 120
)

func fill(color string) excelize.Fill {
	if color == "" {
		return excelize.Fill{}
	}
	return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "BFBFBF", Style: 1},
		{Type: "right", Color: "BFBFBF", Style: 1},
		{Type: "top", Color: "BFBFBF", Style: 1},
		{Type: "bottom", Color: "BFBFBF", Style: 1},
	}
}

// cellStyle describes a bordered, centered cell of the sets sheets.
func cellStyle(bg, fontColor, numFmt string, bold bool, align string) *excelize.Style {
	s := &excelize.Style{
		Border:    thinBorder(),
		Fill:      fill(bg),
		Font:      &excelize.Font{Bold: bold, Color: fontColor},
		Alignment: &excelize.Alignment{Horizontal: align, Vertical: "center"},
	}
	if numFmt != "" {
		f := numFmt
		s.CustomNumFmt = &f
	}
	return s
}

func (w *Workbook) createStyles() error {
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&w.st.title, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 20},
			Fill:      fill(colorTitle),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border: []excelize.Border{
				{Type: "left", Color: "000000", Style: 2},
				{Type: "right", Color: "000000", Style: 2},
				{Type: "top", Color: "000000", Style: 2},
				{Type: "bottom", Color: "000000", Style: 2},
			},
		}},
		{&w.st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      fill(colorGrey),
			Border:    thinBorder(),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		}},
		{&w.st.note, &excelize.Style{Font: &excelize.Font{Italic: true, Color: colorNote}}},
		{&w.st.setText, cellStyle(colorGrey, "", "", true, "left")},
		{&w.st.partText, cellStyle("", "", "", false, "left")},
		{&w.st.setLink, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: colorLink, Underline: "single"},
			Fill:      fill(colorGrey),
			Border:    thinBorder(),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&w.st.partLink, &excelize.Style{
			Font:      &excelize.Font{Color: colorLink, Underline: "single"},
			Border:    thinBorder(),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&w.st.setInt, cellStyle(colorGrey, "", fmtInteger, false, "center")},
		{&w.st.partInt, cellStyle("", "", fmtInteger, false, "center")},
		{&w.st.setPrice, cellStyle(colorGrey, "", fmtPrice, false, "center")},
		{&w.st.partPrice, cellStyle("", "", fmtPrice, false, "center")},
		{&w.st.setPct, cellStyle(colorGrey, "", fmtPercent, false, "center")},
		{&w.st.partPct, cellStyle("", "", fmtPercent, false, "center")},
		{&w.st.posPrice, cellStyle(colorPosFill, colorPosFont, fmtPrice, false, "center")},
		{&w.st.negPrice, cellStyle(colorNegFill, colorNegFont, fmtPrice, false, "center")},
		{&w.st.posPct, cellStyle(colorPosFill, colorPosFont, fmtPercent, false, "center")},
		{&w.st.negPct, cellStyle(colorNegFill, colorNegFont, fmtPercent, false, "center")},
		{&w.st.tableHeader, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
			Fill:      fill(colorHeader),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
			Border:    []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
		}},
		{&w.st.link, &excelize.Style{Font: &excelize.Font{Color: colorLink, Underline: "single"}}},
		{&w.st.number, numberStyle("", fmtPrice)},
		{&w.st.ratio, numberStyle("", fmtRatio)},
		{&w.st.integer, numberStyle("", fmtInteger)},
		{&w.st.pct, numberStyle("", fmtPercent)},
		{&w.st.unrankedMin, numberStyle(colorLowFill, fmtPrice)},
		{&w.st.maxedMin, numberStyle(colorHighFill, fmtPrice)},
	}

	for _, d := range defs {
		id, err := w.f.NewStyle(d.style)
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return nil
}

func numberStyle(bg, numFmt string) *excelize.Style {
	f := numFmt
	return &excelize.Style{Fill: fill(bg), CustomNumFmt: &f}
}

// addSheet creates a uniquely named sheet, reusing the default one first.
func (w *Workbook) addSheet(title string) (string, error) {
	name := UniqueSheetName(title, w.used)
	if len(w.sheets) == 0 {
		if err := w.f.SetSheetName(defaultSheet, name); err != nil {
			return "", fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("create sheet %q: %w", name, err)
	}
	w.sheets = append(w.sheets, name)
	return name, nil
}

// Sheets returns the sheet names added so far.
func (w *Workbook) Sheets() []string {
	return append([]string(nil), w.sheets...)
}

// AddSets writes one sheet per category in reports.CategoryOrder. Categories
// without sets get no sheet.
func (w *Workbook) AddSets(rows []reports.SetRow, topN int) error {
	byCategory := make(map[reports.Category][]reports.SetRow)
	for _, r := range rows {
		c := r.Category
		if c == "" {
			c = reports.CategoryOther
		}
		byCategory[c] = append(byCategory[c], r)
	}

	for _, c := range reports.CategoryOrder {
		if len(byCategory[c]) == 0 {
			continue
		}
		if err := w.addSetsSheet(c, byCategory[c], topN); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) addSetsSheet(category reports.Category, rows []reports.SetRow, topN int) error {
	title := locale.CategoryTitle(w.lang, string(category))
	name, err := w.addSheet(title)
	if err != nil {
		return err
	}

	headers := locale.SetsHeaders(w.lang, topN)
	last := len(headers)
	s := &sheet{f: w.f, name: name}

	s.merge(1, 1, last, 1)
	s.cell(1, 1, locale.Format(w.lang, locale.SheetTitle, "title", title), w.st.title)
	s.rowHeight(1, 36)
	for i, h := range headers {
		s.cell(i+1, 2, h, w.st.header)
	}
	s.rowHeight(2, 30)

	s.colWidth(1, 1, 10)
	s.colWidth(2, 2, 26)
	s.colWidth(3, 3, 42)
	s.colWidth(4, 4, 10)
	s.colWidth(5, last, 18)
	s.freeze(1, 2)
	s.zoom(sheetZoomScale)

	open := locale.Text(w.lang, locale.OpenLabel)
	row := 3
	for _, set := range rows {
		w.writeSetRow(s, row, set, open)
		row++
		for _, part := range set.Parts {
			w.writePartRow(s, row, part, open, last)
			row++
		}
	}

	row++
	for _, note := range locale.SetsNotes(w.lang, topN) {
		s.cell(1, row, note, w.st.note)
		row++
	}

	return s.err
}

func (w *Workbook) writeSetRow(s *sheet, row int, r reports.SetRow, open string) {
	s.link(1, row, r.Link, open, w.st.setLink)
	s.cell(2, row, r.URLName, w.st.setText)
	s.cell(3, row, r.Name, w.st.setText)
	s.cell(4, row, nil, w.st.setInt)
	s.cell(5, row, intValue(r.Volume24h), w.st.setInt)
	s.cell(6, row, floatValue(r.AvgPrice24h), w.st.setPrice)
	s.cell(7, row, floatValue(r.LivePrice), w.st.setPrice)
	s.cell(8, row, floatValue(r.LiveDev), w.st.setPrice)
	s.cell(9, row, floatValue(r.PartsSum24h), w.st.setPrice)
	s.cell(10, row, floatValue(r.PartsSumLive), w.st.setPrice)
	s.cell(11, row, floatValue(r.Delta24h), signStyle(r.Delta24h, w.st.posPrice, w.st.negPrice, w.st.setPrice))
	s.cell(12, row, floatValue(r.DeltaPct24h), signStyle(r.DeltaPct24h, w.st.posPct, w.st.negPct, w.st.setPct))
	s.cell(13, row, floatValue(r.DeltaLive), signStyle(r.DeltaLive, w.st.posPrice, w.st.negPrice, w.st.setPrice))
	s.cell(14, row, floatValue(r.DeltaPctLive), signStyle(r.DeltaPctLive, w.st.posPct, w.st.negPct, w.st.setPct))
}

func (w *Workbook) writePartRow(s *sheet, row int, p reports.PartRow, open string, last int) {
	s.link(1, row, p.Link, open, w.st.partLink)
	s.cell(2, row, p.URLName, w.st.partText)
	s.cell(3, row, p.Name, w.st.partText)
	s.cell(4, row, p.Quantity, w.st.partInt)
	s.cell(5, row, intValue(p.Volume24h), w.st.partInt)
	s.cell(6, row, floatValue(p.AvgPrice24h), w.st.partPrice)
	s.cell(7, row, floatValue(p.LivePrice), w.st.partPrice)
	s.cell(8, row, floatValue(p.LiveDev), w.st.partPrice)
	for col := 9; col <= last; col++ {
		s.cell(col, row, nil, w.st.partPrice)
	}
}

// signStyle picks pos for values >= 0, neg for negative values and blank
// when the value is unavailable.
func signStyle(v *float64, pos, neg, blank int) int {
	switch {
	case v == nil:
		return blank
	case *v >= 0:
		return pos
	default:
		return neg
	}
}

// AddMods writes the mod profitability sheet.
func (w *Workbook) AddMods(rows []reports.ModRow, topN int) error {
	name, err := w.addSheet(locale.Text(w.lang, locale.ModsSheetName))
	if err != nil {
		return err
	}

	s := &sheet{f: w.f, name: name}
	headers := locale.ModsHeaders(w.lang, topN)
	w.tableHeader(s, headers)

	widths := []float64{9, 28, 34, 14, 10, 16, 14, 18, 16, 16, 14, 18, 16, 16, 16, 18, 20, 18, 14}
	for i, width := range widths {
		s.colWidth(i+1, i+1, width)
	}
	s.freeze(2, 1)

	if len(rows) == 0 {
		s.cell(1, 2, locale.Text(w.lang, locale.EmptySheet), noStyle)
		return s.err
	}

	open := locale.Text(w.lang, locale.OpenLabel)
	for i, r := range rows {
		row := i + 2
		s.link(1, row, r.Link, open, w.st.link)
		s.cell(2, row, r.URLName, noStyle)
		s.cell(3, row, r.Name, noStyle)
		s.cell(4, row, locale.RarityLabel(w.lang, r.Rarity), noStyle)
		s.cell(5, row, r.MaxRank, w.st.integer)
		s.cell(6, row, intValue(r.EndoToMax), w.st.integer)
		s.cell(7, row, floatValue(r.UnrankedMin), w.st.unrankedMin)
		s.cell(8, row, floatValue(r.UnrankedAvg), w.st.number)
		s.cell(9, row, floatValue(r.UnrankedDev), w.st.number)
		s.cell(10, row, r.UnrankedOrders, w.st.integer)
		s.cell(11, row, floatValue(r.MaxedMin), w.st.maxedMin)
		s.cell(12, row, floatValue(r.MaxedAvg), w.st.number)
		s.cell(13, row, floatValue(r.MaxedDev), w.st.number)
		s.cell(14, row, r.MaxedOrders, w.st.integer)
		s.cell(15, row, floatValue(r.Delta), signStyle(r.Delta, w.st.posPrice, w.st.negPrice, w.st.number))
		s.cell(16, row, floatValue(r.DeltaPct), signStyle(r.DeltaPct, w.st.posPct, w.st.negPct, w.st.pct))
		s.cell(17, row, floatValue(r.EndoPerPlat), w.st.number)
		s.cell(18, row, floatValue(r.PlatPerEndo), w.st.ratio)
		s.cell(19, row, intValue(r.Volume24h), w.st.integer)
	}
	s.autoFilter(len(headers), len(rows)+1)

	return s.err
}

// AddEndo writes the Endo candidates sheet.
func (w *Workbook) AddEndo(rows []reports.EndoRow, topN int) error {
	name, err := w.addSheet(locale.Text(w.lang, locale.EndoSheetName))
	if err != nil {
		return err
	}

	s := &sheet{f: w.f, name: name}
	headers := locale.EndoHeaders(w.lang, topN)
	w.tableHeader(s, headers)

	widths := []float64{9, 28, 34, 14, 8, 10, 10, 18, 12, 12, 10, 18, 14}
	for i, width := range widths {
		s.colWidth(i+1, i+1, width)
	}
	s.freeze(0, 1)

	if len(rows) == 0 {
		s.cell(1, 2, locale.Text(w.lang, locale.EmptySheet), noStyle)
		return s.err
	}

	open := locale.Text(w.lang, locale.OpenLabel)
	for i, r := range rows {
		row := i + 2
		s.link(1, row, r.Link, open, w.st.link)
		s.cell(2, row, r.URLName, noStyle)
		s.cell(3, row, r.Name, noStyle)
		s.cell(4, row, locale.RarityLabel(w.lang, r.Rarity), noStyle)
		s.cell(5, row, r.Rank, w.st.integer)
		s.cell(6, row, intValue(r.Mastery), w.st.integer)
		s.cell(7, row, r.Endo, w.st.integer)
		s.cell(8, row, floatValue(r.Price), w.st.number)
		s.cell(9, row, floatValue(r.MinPrice), w.st.number)
		s.cell(10, row, floatValue(r.Deviation), w.st.number)
		s.cell(11, row, r.OrderCount, w.st.integer)
		s.cell(12, row, floatValue(r.EndoPerPlat), w.st.number)
		s.cell(13, row, intValue(r.Volume24h), w.st.integer)
	}
	s.autoFilter(len(headers), len(rows)+1)

	return s.err
}

func (w *Workbook) tableHeader(s *sheet, headers []string) {
	for i, h := range headers {
		s.cell(i+1, 1, h, w.st.tableHeader)
	}
	s.rowHeight(1, 24)
}

// SaveAs writes the workbook to path.
func (w *Workbook) SaveAs(path string) error {
	if len(w.sheets) == 0 {
		name, err := w.addSheet(locale.Text(w.lang, locale.EmptySheet))
		if err != nil {
			return err
		}
		s := &sheet{f: w.f, name: name}
		s.cell(1, 1, locale.Text(w.lang, locale.EmptySheet), w.st.header)
		if s.err != nil {
			return s.err
		}
	}

	w.f.SetActiveSheet(0)
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Close releases the workbook resources.
func (w *Workbook) Close() error {
	return w.f.Close()
}

const noStyle = -1

// sheet writes cells of one worksheet and keeps the first error.
type sheet struct {
	f    *excelize.File
	name string
	err  error
}

func (s *sheet) ref(col, row int) string {
	if s.err != nil {
		return ""
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		s.err = err
	}
	return cell
}

func (s *sheet) do(err error) {
	if s.err == nil && err != nil {
		s.err = fmt.Errorf("sheet %q: %w", s.name, err)
	}
}

// cell writes v (nil leaves the cell empty) and applies style unless it is noStyle.
func (s *sheet) cell(col, row int, v any, style int) {
	cell := s.ref(col, row)
	if s.err != nil {
		return
	}
	if v != nil {
		s.do(s.f.SetCellValue(s.name, cell, v))
	}
	if style != noStyle {
		s.do(s.f.SetCellStyle(s.name, cell, cell, style))
	}
}

func (s *sheet) link(col, row int, url, label string, style int) {
	if url == "" {
		s.cell(col, row, nil, style)
		return
	}
	s.cell(col, row, label, style)
	cell := s.ref(col, row)
	if s.err != nil {
		return
	}
	s.do(s.f.SetCellHyperLink(s.name, cell, url, "External", excelize.HyperlinkOpts{Display: &label, Tooltip: &url}))
}

func (s *sheet) merge(fromCol, fromRow, toCol, toRow int) {
	from, to := s.ref(fromCol, fromRow), s.ref(toCol, toRow)
	if s.err != nil {
		return
	}
	s.do(s.f.MergeCell(s.name, from, to))
}

func (s *sheet) colWidth(from, to int, width float64) {
	if s.err != nil {
		return
	}
	start, err := excelize.ColumnNumberToName(from)
	s.do(err)
	end, err := excelize.ColumnNumberToName(to)
	s.do(err)
	if s.err == nil {
		s.do(s.f.SetColWidth(s.name, start, end, width))
	}
}

func (s *sheet) rowHeight(row int, height float64) {
	if s.err == nil {
		s.do(s.f.SetRowHeight(s.name, row, height))
	}
}

// freeze keeps the first cols columns and rows rows in view.
func (s *sheet) freeze(cols, rows int) {
	topLeft := s.ref(cols+1, rows+1)
	if s.err != nil {
		return
	}
	pane := "bottomRight"
	switch {
	case cols == 0:
		pane = "bottomLeft"
	case rows == 0:
		pane = "topRight"
	}
	s.do(s.f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		XSplit:      cols,
		YSplit:      rows,
		TopLeftCell: topLeft,
		ActivePane:  pane,
	}))
}

func (s *sheet) zoom(scale float64) {
	if s.err == nil {
		s.do(s.f.SetSheetView(s.name, 0, &excelize.ViewOptions{ZoomScale: &scale}))
	}
}

func (s *sheet) autoFilter(lastCol, lastRow int) {
	to := s.ref(lastCol, lastRow)
	if s.err != nil {
		return
	}
	s.do(s.f.AutoFilter(s.name, "A1:"+to, nil))
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
