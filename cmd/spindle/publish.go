package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
	"github.com/vango-dev/spindle/internal/publish"
)

type publishFlags struct {
	bucket   string
	prefix   string
	region   string
	endpoint string
	dryRun   bool
	jobs     int
}

func (f *publishFlags) apply(cfg *config.Config) {
	if f.bucket != "" {
		cfg.Publish.Bucket = f.bucket
	}
	if f.prefix != "" {
		cfg.Publish.Prefix = f.prefix
	}
	if f.region != "" {
		cfg.Publish.Region = f.region
	}
	if f.endpoint != "" {
		cfg.Publish.Endpoint = f.endpoint
	}
}

func publishCmd() *cobra.Command {
	var flags publishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the dist directory to S3",
		Long: `Upload every file of the dist directory to an S3-compatible bucket.

Content-hashed outputs are uploaded with a long-lived immutable
Cache-Control; index.html and other unhashed files get no-cache.
Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
AWS_SESSION_TOKEN.

Examples:
  spindle publish --bucket=my-site
  spindle publish --bucket=my-site --prefix=v2 --dry-run
  spindle publish --bucket=assets --endpoint=http://localhost:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(&flags)
		},
	}

	cmd.Flags().StringVarP(&flags.bucket, "bucket", "b", "", "Destination bucket (default from config)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "Key prefix inside the bucket")
	cmd.Flags().StringVar(&flags.region, "region", "", "Bucket region (default from config)")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Custom S3 endpoint for compatible stores")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List what would be uploaded")
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", 0, "Parallel uploads (default one per CPU)")

	return cmd
}

func runPublish(flags *publishFlags) error {
	cfg, err := loadConfig(flags.apply)
	if err != nil {
		return err
	}

	client, err := publish.NewClient(cfg.Publish)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	uploader := publish.New(client, publish.Options{
		Bucket:       cfg.Publish.Bucket,
		Prefix:       cfg.Publish.Prefix,
		CacheControl: cfg.Publish.CacheControl,
		Concurrency:  flags.jobs,
		DryRun:       flags.dryRun,
	})

	objects, err := uploader.Upload(ctx, cfg.DistPath())
	if err != nil {
		return errors.New("E143").Wrap(err)
	}

	var total int64
	for _, o := range objects {
		total += o.Size
		info("%s  (%s, %s)", o.Key, formatBytes(o.Size), o.CacheControl)
	}
	if flags.dryRun {
		success("Would upload %d objects (%s) to s3://%s", len(objects), formatBytes(total), cfg.Publish.Bucket)
		return nil
	}
	success("Uploaded %d objects (%s) to s3://%s", len(objects), formatBytes(total), cfg.Publish.Bucket)
	return nil
}
