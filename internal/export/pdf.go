package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/predict"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

const (
	labelWidth = 45.0
	lineHeight = 6.0
)

func typeTitle(t flow.NodeType) string {
	switch t {
	case flow.TypeEmail:
		return "Email"
	case flow.TypePush:
		return "Push Notification"
	case flow.TypeAd:
		return "Advertisement"
	case flow.TypeSocial:
		return "Social Post"
	case flow.TypeDelay:
		return "Delay"
	case flow.TypeConditional, flow.TypeConditionalSplit:
		return "Conditional Split"
	case flow.TypeGA4Event:
		return "GA4 Event"
	}
	return titleCase(string(t))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// humanize turns "open_rate" into "Open rate"
func humanize(key string) string {
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (w *pdfWriter) heading(text string, size float64) {
	w.pdf.SetFont("Helvetica", "B", size)
	w.pdf.CellFormat(0, size*0.6, w.tr(text), "", 1, "L", false, 0, "")
	w.pdf.Ln(2)
}

func (w *pdfWriter) text(text string) {
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.MultiCell(0, lineHeight, w.tr(text), "", "L", false)
}

func (w *pdfWriter) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	w.text(label + ": " + value)
}

func (w *pdfWriter) row(label, value string) {
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.CellFormat(labelWidth, lineHeight+2, w.tr(label), "TB", 0, "L", false, 0, "")
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.CellFormat(0, lineHeight+2, w.tr(value), "TB", 1, "L", false, 0, "")
}

// RenderPDF builds the campaign plan document
func RenderPDF(c *campaign.Campaign, now time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetTitle(c.Name, true)
	pdf.SetCreator("flowry", true)
	pdf.SetCreationDate(now)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	writeHeader(w, c)
	writeOverview(w, c)
	writeUTM(w, c)
	writeFlow(w, c)
	writePerformance(w, c)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(w *pdfWriter, c *campaign.Campaign) {
	pdf := w.pdf
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, w.tr("Campaign Plan: "+c.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	for _, line := range []string{
		"Brand: " + titleCase(c.Brand),
		"Goal: " + c.Goal,
		"Created: " + c.CreatedAt.Format("January 02, 2006"),
	} {
		pdf.CellFormat(0, 7, w.tr(line), "", 1, "C", false, 0, "")
	}
	pdf.Ln(10)
}

func writeOverview(w *pdfWriter, c *campaign.Campaign) {
	w.heading("Campaign Overview", 16)
	w.row("Campaign Name", c.Name)
	w.row("Brand", titleCase(c.Brand))
	w.row("Primary Goal", c.Goal)
	w.row("Status", titleCase(c.Status.String()))
	w.row("Created", c.CreatedAt.Format("January 02, 2006 at 03:04 PM"))
	w.row("Last Updated", c.UpdatedAt.Format("January 02, 2006 at 03:04 PM"))
	w.pdf.Ln(10)
}

func writeUTM(w *pdfWriter, c *campaign.Campaign) {
	u := c.UTMParameters()
	if u.IsZero() {
		return
	}
	orNotSet := func(s string) string {
		if s == "" {
			return "Not set"
		}
		return s
	}
	w.heading("UTM Tracking Settings", 16)
	w.row("UTM Source", orNotSet(u.Source))
	w.row("UTM Medium", orNotSet(u.Medium))
	w.row("UTM Campaign", orNotSet(u.Campaign))
	w.pdf.Ln(10)
}

func writeFlow(w *pdfWriter, c *campaign.Campaign) {
	w.heading("Campaign Flow", 16)

	nodes := c.Structure.GetNodes()
	if len(nodes) == 0 {
		w.text("No campaign flow defined yet.")
		return
	}

	for i := range nodes {
		n := &nodes[i]
		w.heading(fmt.Sprintf("%d. %s", i+1, n.DisplayName(titleCase(string(n.Type)))), 13)
		w.text("Type: " + typeTitle(n.Type))

		switch n.Type {
		case flow.TypeEmail:
			w.field("Subject", n.Str("subject"))
			w.field("Preheader", n.Str("preheader"))
			if body := stripHTML(n.Str("body")); body != "" {
				w.text("Body:")
				w.pdf.SetLeftMargin(30)
				w.text(body)
				w.pdf.SetLeftMargin(10)
			}
		case flow.TypePush:
			w.field("Title", n.Str("title"))
			w.field("Body", n.Str("body"))
		case flow.TypeAd:
			w.field("Platform", n.Str("platform"))
			w.field("Headline", n.Str("headline"))
			w.field("Body Copy", n.Body())
			w.field("Creative Notes", n.Str("creative_notes"))
		case flow.TypeSocial:
			w.field("Platform", n.Str("platform"))
			w.field("Caption", n.Body())
		case flow.TypeDelay:
			w.text(strings.TrimSpace("Duration: " + n.Str("duration") + " " + n.Str("unit")))
		case flow.TypeConditional, flow.TypeConditionalSplit:
			w.field("Condition", n.Str("condition"))
		case flow.TypeGA4Event:
			w.field("Event Name", n.Str("event_name"))
			w.field("Trigger", n.Str("trigger"))
			if params, ok := n.Data["parameters"]; ok && params != nil {
				if data, err := json.Marshal(params); err == nil {
					w.field("Parameters", string(data))
				}
			}
		}
		w.pdf.Ln(5)
	}
}

func writePerformance(w *pdfWriter, c *campaign.Campaign) {
	if len(c.PredictedPerformance) == 0 && len(c.ActualPerformance) == 0 {
		return
	}
	w.pdf.AddPage()
	w.heading("Performance Data", 16)

	writeMetrics(w, "Predicted Performance", c.PredictedPerformance)
	writeMetrics(w, "Actual Performance", c.ActualPerformance)

	cmp := c.PredictedVsActual()
	if cmp == nil || len(cmp.Variance) == 0 {
		return
	}
	w.heading("Performance Comparison", 13)
	for _, metric := range predict.SortedMetrics(cmp.Variance) {
		w.text(humanize(metric) + ": " + formatVariance(cmp.Variance[metric]))
	}
}

func writeMetrics(w *pdfWriter, title string, m map[string]float64) {
	if len(m) == 0 {
		return
	}
	w.heading(title, 13)
	for _, k := range sortedKeys(m) {
		w.text(fmt.Sprintf("%s: %g", humanize(k), m[k]))
	}
	w.pdf.Ln(5)
}

func formatVariance(v predict.Variance) string {
	diff, unit := v.Difference, ""
	if v.PercentageChange != nil {
		diff, unit = *v.PercentageChange, "%"
	}
	direction := "down"
	if diff > 0 {
		direction = "up"
	}
	return fmt.Sprintf("%s %g%s", direction, math.Round(math.Abs(diff)*100)/100, unit)
}
