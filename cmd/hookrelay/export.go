package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/hookrelay/internal/archive"
	"github.com/rsclarke/hookrelay/internal/client"
	"github.com/rsclarke/hookrelay/internal/config"
	"github.com/rsclarke/hookrelay/internal/logging"
)

var exportFlags struct {
	rangeQuery
	limit    int
	out      string
	s3Prefix string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored logs as CSV",
	Long: `Export stored logs as CSV with a header line naming every column.

The CSV is written to stdout, to --out, or uploaded to S3 when a bucket is
configured (--s3-bucket or s3.bucket). Object keys are partitioned by date
under --s3-prefix.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	f := exportCmd.Flags()
	f.StringVar(&exportFlags.from, "from", "", "range start (RFC 3339)")
	f.StringVar(&exportFlags.to, "to", "", "range end (RFC 3339)")
	f.Int64Var(&exportFlags.afterID, "after-id", 0, "only logs after this ID")
	f.Int64Var(&exportFlags.minID, "min-id", 0, "lowest ID (inclusive)")
	f.Int64Var(&exportFlags.maxID, "max-id", 0, "highest ID (inclusive)")
	f.IntVar(&exportFlags.limit, "limit", 0, "maximum rows (0 for all)")
	f.StringVarP(&exportFlags.out, "out", "o", "", "write CSV to this file")
	f.StringVar(&exportFlags.s3Prefix, "s3-prefix", "exports", "S3 key prefix")
	config.Spec.AddFlag(f, "s3-bucket", "s3.bucket")
	config.Spec.AddFlag(f, "s3-endpoint", "s3.endpoint")
	exportCmd.MarkFlagsMutuallyExclusive("out", "s3-bucket")
}

func runExport(cmd *cobra.Command, args []string) error {
	q := exportFlags.rangeQuery.values()
	if exportFlags.limit > 0 {
		q.Set("limit", strconv.Itoa(exportFlags.limit))
	}

	data, err := newClient().Export(q)
	if errors.Is(err, client.ErrNotFound) {
		_, err = fmt.Fprintln(cmd.ErrOrStderr(), "No logs found.")
		return err
	}
	if err != nil {
		return err
	}

	s3Cfg := config.Load().S3
	switch {
	case s3Cfg.Bucket != "":
		return uploadExport(cmd.Context(), s3Cfg, data)
	case exportFlags.out != "":
		return os.WriteFile(exportFlags.out, data, 0o644)
	default:
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
}

func uploadExport(ctx context.Context, cfg config.S3Config, data []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s3Client, err := archive.NewClient(ctx, archive.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("create S3 client: %w", err)
	}

	key := archive.ObjectKey(exportFlags.s3Prefix, time.Now())
	if err := archive.NewUploader(s3Client, cfg.Bucket).Upload(ctx, key, data); err != nil {
		return err
	}

	logger.Info("export uploaded",
		logging.Bucket(cfg.Bucket),
		logging.Path(key),
	)
	return nil
}
