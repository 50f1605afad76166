// ABOUTME: Printable output for a report: a standalone HTML document and a PDF rendered by headless Chrome.
// ABOUTME: The HTML is self-contained so it prints the same from a browser, a file, or chromedp.
package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/2389-research/mammoscope/predict"
)

//go:embed templates/print.html
var printFS embed.FS

var printTemplate = template.Must(template.New("print.html").Funcs(template.FuncMap{
	"percent": Percent,
}).ParseFS(printFS, "templates/print.html"))

type printRow struct {
	Label string
	Text  string
	Width string
}

type printData struct {
	GeneratedAt     string
	Banner          Banner
	Probabilities   []printRow
	AbnormalityType string
	Scores          []printRow
	Tissue          *predict.Tissue
	Explanation     *predict.Explanation
	Features        []FeatureRow
}

// PrintHTML renders rep as a printable HTML document.
func PrintHTML(rep *Report, generatedAt time.Time) ([]byte, error) {
	if rep == nil || rep.Result == nil {
		return nil, ErrNoResult
	}
	res := rep.Result
	data := printData{
		GeneratedAt:     generatedAt.UTC().Format(time.RFC1123),
		Banner:          rep.Banner,
		AbnormalityType: deref(res.AbnormalityType),
		Tissue:          res.BackgroundTissue,
		Explanation:     res.Explanation,
		Features:        rep.Features,
	}
	for _, c := range predict.Classes {
		p := res.Probabilities.Of(c)
		data.Probabilities = append(data.Probabilities, printRow{Label: string(c), Text: Percent(p), Width: barWidth(p, 1)})
	}
	top := maxScore(res.AbnormalityScores)
	for _, s := range res.AbnormalityScores.Ranked() {
		data.Scores = append(data.Scores, printRow{Label: s.Name, Text: formatFloat(s.Value), Width: barWidth(s.Value, top)})
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render print view: %w", err)
	}
	return buf.Bytes(), nil
}

// PrintPDF loads html into a headless browser and prints it to PDF. ctx should
// come from chromedp.NewContext; it bounds the whole operation.
func PrintPDF(ctx context.Context, html []byte) ([]byte, error) {
	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

// NewBrowser starts a headless Chrome allocator and returns a browser context.
// The cancel func shuts the browser down.
func NewBrowser(parent context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		browserCancel()
		allocCancel()
	}
}

func maxScore(scores predict.Scores) float64 {
	m := 0.0
	for _, s := range scores {
		m = math.Max(m, math.Abs(s.Value))
	}
	return m
}

// barWidth scales v against limit into a CSS percentage in [0,100].
func barWidth(v, limit float64) string {
	if limit <= 0 {
		return "0%"
	}
	w := math.Max(0, math.Min(1, v/limit)) * 100
	return fmt.Sprintf("%.1f%%", w)
}
