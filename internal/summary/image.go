// Package summary renders the dashboard summary as a PNG: a bar chart of
// message counts per type followed by the category totals table.
package summary

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"msgdash/internal/format"
	"msgdash/internal/session"
	"msgdash/internal/stats"

	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
)

// Bar is one message type in the chart.
type Bar struct {
	Label string
	Value int
}

// Row is one category line of the table, already formatted for display.
type Row struct {
	Category string
	Count    string
	Amount   string
	Detail   string
}

// Report is everything the image shows.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Bars        []Bar
	Rows        []Row
	Footer      string
}

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("no message statistics to render")

// Layout constants, rendered at 2x scale for Telegram clarity
const (
	cellPaddingX  = 20
	rowHeight     = 64
	headerHeight  = 76
	fontSize      = 24
	headerFontSz  = 24
	titleFontSz   = 36
	titlePadding  = 110
	footerPadding = 80
	minColWidth   = 140
	margin        = 40.0

	barHeight   = 36
	barGap      = 14
	chartLabelW = 340.0
	chartWidth  = 1100.0
	maxBars     = 12
	maxLabelLen = 28
)

// Light theme colors
var (
	bgColor         = color.RGBA{R: 245, G: 247, B: 250, A: 255} // Light gray bg
	titleColor      = color.RGBA{R: 30, G: 41, B: 59, A: 255}    // Dark slate
	headerBgColor   = color.RGBA{R: 37, G: 99, B: 235, A: 255}   // Blue
	headerTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255} // White
	rowEvenColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255} // White
	rowOddColor     = color.RGBA{R: 241, G: 245, B: 249, A: 255} // Subtle blue-gray
	textColor       = color.RGBA{R: 30, G: 41, B: 59, A: 255}    // Dark slate
	borderColor     = color.RGBA{R: 203, G: 213, B: 225, A: 255} // Slate border
	footerColor     = color.RGBA{R: 100, G: 116, B: 139, A: 255} // Muted slate
	barColor        = color.RGBA{R: 59, G: 130, B: 246, A: 255}  // Lighter blue
)

var tableHeaders = []string{"Category", "Messages", "Total Amount", "Details"}

// NewReport builds the report for a session snapshot.
func NewReport(snap session.Snapshot, f *format.Formatter, now time.Time) Report {
	r := Report{
		Title:       "Financial Messages Summary",
		GeneratedAt: now,
	}

	for typ, n := range snap.TypeCounts {
		r.Bars = append(r.Bars, Bar{Label: typ, Value: n})
	}
	slices.SortFunc(r.Bars, func(a, b Bar) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(r.Bars) > maxBars {
		r.Bars = r.Bars[:maxBars]
	}

	for _, c := range snap.Categories {
		r.Rows = append(r.Rows, Row{
			Category: stats.Label(c.Name),
			Count:    f.Count(c.Count),
			Amount:   f.Decimal(c.Total),
			Detail:   detail(c, f),
		})
	}

	r.Footer = fmt.Sprintf("%s customers  •  %s transactions",
		f.Count(snap.Summary.TotalCustomers), f.Count(snap.Summary.TotalTransactions))
	return r
}

// detail renders the secondary metric of a category.
func detail(c stats.Category, f *format.Formatter) string {
	switch c.Name {
	case stats.EMI:
		return "Loans: " + f.Count(c.UniqueLoans)
	case stats.CreditCard:
		return "Highest outstanding: " + f.Decimal(c.HighestOutstanding)
	case stats.Investments:
		return "Folios: " + f.Count(c.UniqueFolios)
	case stats.Insurance:
		return "Policies: " + f.Count(c.UniquePolicies)
	}
	return ""
}

// findFont locates a font file across Linux and Windows paths.
func findFont(bold bool) string {
	var candidates []string
	if runtime.GOOS == "windows" {
		winRoot := os.Getenv("WINDIR")
		if winRoot == "" {
			winRoot = `C:\Windows`
		}
		if bold {
			candidates = []string{
				winRoot + `\Fonts\arialbd.ttf`,
				winRoot + `\Fonts\Arial Bold.ttf`,
			}
		} else {
			candidates = []string{
				winRoot + `\Fonts\arial.ttf`,
				winRoot + `\Fonts\Arial.ttf`,
			}
		}
	} else {
		if bold {
			candidates = []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
				"/usr/share/fonts/TTF/DejaVuSans-Bold.ttf",
			}
		} else {
			candidates = []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
				"/usr/share/fonts/TTF/DejaVuSans.ttf",
			}
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return candidates[0]
}

// painter loads faces by role and keeps gg's built-in face when no system
// font is installed.
type painter struct {
	dc      *gg.Context
	bold    string
	regular string
	warned  bool
}

func (p *painter) face(bold bool, size float64) {
	path := p.regular
	if bold {
		path = p.bold
	}
	if err := p.dc.LoadFontFace(path, size); err != nil && !p.warned {
		p.warned = true
		logrus.WithError(err).Warn("⚠️  Font not found, using the built-in face")
	}
}

// Render draws r and returns PNG bytes.
func Render(r Report) ([]byte, error) {
	if len(r.Bars) == 0 && len(r.Rows) == 0 {
		return nil, ErrEmpty
	}

	boldFont := findFont(true)
	regularFont := findFont(false)

	// ---- Step 1: Measure column widths ----
	tmp := &painter{dc: gg.NewContext(1, 1), bold: boldFont, regular: regularFont, warned: true}
	tmp.face(true, headerFontSz)
	colWidths := make([]float64, len(tableHeaders))
	for i, h := range tableHeaders {
		w, _ := tmp.dc.MeasureString(h)
		colWidths[i] = max(w+cellPaddingX*2+4, minColWidth)
	}
	tmp.face(false, fontSize)
	for _, row := range r.Rows {
		for i, text := range row.cells() {
			w, _ := tmp.dc.MeasureString(text)
			colWidths[i] = max(colWidths[i], w+cellPaddingX*2+4)
		}
	}

	// ---- Step 2: Calculate canvas size ----
	var tableWidth float64
	for _, w := range colWidths {
		tableWidth += w
	}
	contentWidth := max(tableWidth, chartWidth)
	chartHeight := float64(len(r.Bars)) * (barHeight + barGap)
	tableHeight := float64(headerHeight) + float64(len(r.Rows))*rowHeight

	canvasWidth := contentWidth + margin*2
	canvasHeight := float64(titlePadding) + chartHeight + margin + tableHeight + float64(footerPadding)

	// ---- Step 3: Draw ----
	p := &painter{dc: gg.NewContext(int(canvasWidth), int(canvasHeight)), bold: boldFont, regular: regularFont}
	dc := p.dc

	dc.SetColor(bgColor)
	dc.Clear()

	p.face(true, titleFontSz)
	dc.SetColor(titleColor)
	title := fmt.Sprintf("%s  •  %s", r.Title, r.GeneratedAt.Format("02 Jan 2006, 03:04 PM"))
	dc.DrawStringAnchored(title, canvasWidth/2, float64(titlePadding)/2, 0.5, 0.5)

	y := float64(titlePadding)
	drawBars(p, r.Bars, margin, y, contentWidth)
	y += chartHeight + margin

	drawTable(p, r.Rows, colWidths, margin, y, tableWidth)

	p.face(false, 22)
	dc.SetColor(footerColor)
	dc.DrawStringAnchored(r.Footer, canvasWidth/2, canvasHeight-float64(footerPadding)/2, 0.5, 0.5)

	// ---- Step 4: Encode to PNG ----
	return encodeImage(dc.Image())
}

func drawBars(p *painter, bars []Bar, x, y, width float64) {
	if len(bars) == 0 {
		return
	}
	dc := p.dc
	peak := 0
	for _, b := range bars {
		peak = max(peak, b.Value)
	}
	span := width - chartLabelW - 120

	p.face(false, fontSize)
	for i, b := range bars {
		top := y + float64(i)*(barHeight+barGap)
		mid := top + barHeight/2

		dc.SetColor(textColor)
		dc.DrawStringAnchored(truncate(b.Label, maxLabelLen), x+chartLabelW-cellPaddingX, mid, 1, 0.5)

		w := 0.0
		if peak > 0 {
			w = span * float64(b.Value) / float64(peak)
		}
		dc.SetColor(barColor)
		dc.DrawRoundedRectangle(x+chartLabelW, top, max(w, 2), barHeight, 6)
		dc.Fill()

		dc.SetColor(footerColor)
		dc.DrawStringAnchored(fmt.Sprint(b.Value), x+chartLabelW+max(w, 2)+12, mid, 0, 0.5)
	}
}

func drawTable(p *painter, rows []Row, colWidths []float64, x, y, width float64) {
	dc := p.dc

	// Header row background (rounded top corners)
	dc.SetColor(headerBgColor)
	dc.DrawRoundedRectangle(x, y, width, float64(headerHeight), 16)
	dc.Fill()

	p.face(true, headerFontSz)
	dc.SetColor(headerTextColor)
	cx := x
	for i, h := range tableHeaders {
		dc.DrawStringAnchored(h, cx+colWidths[i]/2, y+float64(headerHeight)/2, 0.5, 0.5)
		cx += colWidths[i]
	}

	p.face(false, fontSize)
	curY := y + float64(headerHeight)
	for rowIdx, row := range rows {
		if rowIdx%2 == 0 {
			dc.SetColor(rowEvenColor)
		} else {
			dc.SetColor(rowOddColor)
		}
		dc.DrawRectangle(x, curY, width, rowHeight)
		dc.Fill()

		dc.SetColor(borderColor)
		dc.SetLineWidth(0.5)
		dc.DrawLine(x, curY+rowHeight, x+width, curY+rowHeight)
		dc.Stroke()

		dc.SetColor(textColor)
		cx := x
		for i, text := range row.cells() {
			dc.DrawStringAnchored(text, cx+cellPaddingX, curY+rowHeight/2, 0, 0.5)
			cx += colWidths[i]
		}
		curY += rowHeight
	}

	// Outer table border
	dc.SetColor(borderColor)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, width, curY-y, 16)
	dc.Stroke()
}

func (r Row) cells() []string {
	return []string{r.Category, r.Count, r.Amount, r.Detail}
}

func encodeImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		runes := []rune(s)
		return string(runes[:maxLen]) + "…"
	}
	return s
}
