// Package export renders campaign plans into downloadable documents.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/flowry/internal/campaign"
)

// FormatPDF is the only supported export format
const FormatPDF = "pdf"

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Artifact describes a stored export
type Artifact struct {
	Format      string `json:"format"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`
	DOT         string `json:"dot,omitempty"`
}

// Sink stores rendered files and returns where they can be downloaded
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Exporter renders campaigns and hands the result to a sink
type Exporter struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// New creates an exporter writing to sink
func New(sink Sink, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		sink:   sink,
		now:    time.Now,
		logger: logger,
	}
}

// SupportedFormat reports whether format can be exported
func SupportedFormat(format string) bool {
	return strings.EqualFold(format, FormatPDF)
}

// Export renders c in format and stores it
func (e *Exporter) Export(ctx context.Context, c *campaign.Campaign, format string) (*Artifact, error) {
	if !SupportedFormat(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	now := e.now().UTC()
	data, err := RenderPDF(c, now)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("campaign_%s_%s.pdf", c.ID, now.Format("20060102_150405"))
	url, err := e.sink.Put(ctx, name, "application/pdf", data)
	if err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}

	a := &Artifact{
		Format:      FormatPDF,
		FileName:    name,
		DownloadURL: url,
		FileSize:    int64(len(data)),
	}

	// the flow diagram is a best-effort extra
	dot, err := RenderDOT(ctx, &c.Structure)
	if err != nil {
		e.logger.Warn("failed to render flow diagram", "campaign_id", c.ID, "error", err)
	} else {
		a.DOT = dot
	}

	e.logger.Info("campaign exported", "campaign_id", c.ID, "file", name, "size", a.FileSize)
	return a, nil
}
