// Package export archives compliance run reports as JSON documents in an
// object store or a local directory.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"medisupply/internal/compliance/service"
	"medisupply/internal/platform/config"
	id "medisupply/pkg/domain"
)

const contentType = "application/json"

// Sink stores one archived document under key.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Exporter writes run reports to a sink under
// <prefix>/<period type>/<start>_<end>/run-<finished at>.json.
type Exporter struct {
	sink   Sink
	prefix string
}

func NewExporter(sink Sink, prefix string) *Exporter {
	return &Exporter{sink: sink, prefix: prefix}
}

// Open builds the sink selected by cfg. It returns nil when archiving is
// disabled.
func Open(ctx context.Context, cfg config.ArchiveConfig) (*Exporter, error) {
	switch {
	case cfg.Bucket != "":
		sink, err := NewS3Sink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewExporter(sink, cfg.Prefix), nil
	case cfg.Dir != "":
		return NewExporter(NewDirSink(cfg.Dir), cfg.Prefix), nil
	default:
		return nil, nil
	}
}

// Key returns the archive key for a report.
func (e *Exporter) Key(report *service.RunReport) string {
	p := report.Period
	return path.Join(e.prefix, string(p.Type),
		p.Start.Format(id.DateLayout)+"_"+p.End.Format(id.DateLayout),
		"run-"+report.FinishedAt.UTC().Format("20060102T150405Z")+".json")
}

// Export writes the report and returns its key.
func (e *Exporter) Export(ctx context.Context, report *service.RunReport) (string, error) {
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now()
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}
	key := e.Key(report)
	if err := e.sink.Put(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("archive run report %s: %w", key, err)
	}
	return key, nil
}
