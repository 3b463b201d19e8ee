package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"medisupply/internal/compliance/export"
	"medisupply/internal/compliance/feed"
	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	"medisupply/internal/platform/kafka"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	pkgstrings "medisupply/pkg/platform/strings"
)

var periodFlags = []cli.Flag{
	&cli.StringFlag{Name: "period-type", Required: true, Usage: "bimonthly, quarterly, semiannual or annual (Spanish names accepted)"},
	&cli.StringFlag{Name: "period-start", Required: true, Usage: "first day of the period, YYYY-MM-DD"},
	&cli.StringFlag{Name: "period-end", Required: true, Usage: "last day of the period, YYYY-MM-DD"},
	&cli.StringSliceFlag{Name: "vendor", Usage: "restrict to these vendor IDs (repeatable or comma-separated)"},
}

func parsePeriodFlags(c *cli.Context) (id.Period, []id.VendorID, error) {
	period, err := id.ParsePeriod(c.String("period-type"), c.String("period-start"), c.String("period-end"))
	if err != nil {
		return id.Period{}, nil, err
	}
	var vendors []id.VendorID
	for _, raw := range pkgstrings.SplitList(c.StringSlice("vendor")) {
		v, err := id.ParseVendorID(raw)
		if err != nil {
			return id.Period{}, nil, err
		}
		vendors = append(vendors, v)
	}
	return period, vendors, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "compute compliance for every vendor with sales data in a period",
		Flags: append(append([]cli.Flag{}, periodFlags...),
			&cli.BoolFlag{Name: "supersede", Usage: "replace existing results with a new version"},
			&cli.StringFlag{Name: "archive-dir", Usage: "archive the run report under this directory"},
			&cli.StringFlag{Name: "archive-bucket", Usage: "archive the run report to this S3 bucket"},
		),
		Action: func(c *cli.Context) error {
			period, vendors, err := parsePeriodFlags(c)
			if err != nil {
				return err
			}
			d, err := openDeps(c.Context)
			if err != nil {
				return err
			}
			defer d.Close()

			archive := d.cfg.Archive
			if dir := c.String("archive-dir"); dir != "" {
				archive.Dir, archive.Bucket = dir, ""
			}
			if bucket := c.String("archive-bucket"); bucket != "" {
				archive.Bucket = bucket
			}
			exporter, err := export.Open(c.Context, archive)
			if err != nil {
				return err
			}

			report, err := d.service.RunPeriod(c.Context, period, service.RunOptions{
				VendorIDs: vendors,
				Supersede: c.Bool("supersede"),
			})
			if err != nil {
				return err
			}
			for _, o := range report.Outcomes {
				switch {
				case o.Err != nil:
					d.log.ErrorContext(c.Context, "vendor compliance failed",
						"vendor_id", o.VendorID, "code", dErrors.GetCode(o.Err), "error", o.Error)
				case o.Skipped:
					d.log.InfoContext(c.Context, "vendor skipped: no sales data", "vendor_id", o.VendorID)
				default:
					d.log.InfoContext(c.Context, "vendor compliance computed",
						"vendor_id", o.VendorID,
						"status", o.Result.Status,
						"compliance_pct", o.Result.CompliancePct.StringFixed(2),
						"version", o.Result.Version,
					)
				}
			}
			if exporter != nil {
				key, err := exporter.Export(c.Context, report)
				if err != nil {
					return err
				}
				d.log.InfoContext(c.Context, "run report archived", "key", key)
			}
			return report.FirstError()
		},
	}
}

func snapshotSalesCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot-sales",
		Usage: "build sales snapshots from delivered orders",
		Flags: append(append([]cli.Flag{}, periodFlags...),
			&cli.BoolFlag{Name: "publish", Usage: "publish snapshots to the sales feed instead of storing them"},
		),
		Action: func(c *cli.Context) error {
			period, vendors, err := parsePeriodFlags(c)
			if err != nil {
				return err
			}
			d, err := openDeps(c.Context)
			if err != nil {
				return err
			}
			defer d.Close()

			if len(vendors) == 0 {
				if vendors, err = d.service.ActiveVendors(c.Context); err != nil {
					return err
				}
			}

			deliver := func(snap *models.SalesSnapshot) error {
				return d.service.IngestSales(c.Context, snap)
			}
			if c.Bool("publish") {
				client, err := kafka.NewClient(d.cfg.Kafka)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := kafka.EnsureTopics(c.Context, client, d.cfg.Kafka.Partitions, d.cfg.Kafka.SalesTopic); err != nil {
					return err
				}
				pub := feed.NewPublisher(client, d.cfg.Kafka.SalesTopic)
				deliver = func(snap *models.SalesSnapshot) error {
					return pub.PublishSales(c.Context, snap)
				}
			}

			var firstErr error
			for _, vendorID := range vendors {
				snap, err := d.service.BuildSalesSnapshot(c.Context, vendorID, period)
				if err == nil {
					err = deliver(snap)
				}
				switch {
				case err == nil:
					d.log.InfoContext(c.Context, "sales snapshot captured",
						"vendor_id", vendorID, "orders", snap.TotalOrders, "total_sales", snap.TotalSales.StringFixed(2))
				case dErrors.HasCode(err, dErrors.CodeConflict):
					d.log.InfoContext(c.Context, "sales snapshot already captured", "vendor_id", vendorID)
				default:
					d.log.ErrorContext(c.Context, "sales snapshot failed", "vendor_id", vendorID, "error", err)
					if firstErr == nil {
						firstErr = fmt.Errorf("vendor %s: %w", vendorID, err)
					}
				}
			}
			return firstErr
		},
	}
}

func consumeFeedsCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume-feeds",
		Usage: "ingest sales and plan snapshots from Kafka until interrupted",
		Action: func(c *cli.Context) error {
			d, err := openDeps(c.Context)
			if err != nil {
				return err
			}
			defer d.Close()

			k := d.cfg.Kafka
			if !k.Enabled() {
				return errors.New("consume-feeds requires MEDISUPPLY_KAFKA_BROKERS")
			}
			client, err := kafka.NewClient(k, feed.ConsumerOpts(k.ConsumerGroup, k.SalesTopic, k.PlanTopic)...)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := kafka.EnsureTopics(c.Context, client, k.Partitions, k.SalesTopic, k.PlanTopic); err != nil {
				return err
			}
			return feed.NewConsumer(client, d.service, k.SalesTopic, k.PlanTopic, d.log).Run(c.Context)
		},
	}
}
