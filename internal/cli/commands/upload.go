package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careworks-labs/nhstage/internal/export"
)

// UploadOptions holds options for the upload command.
type UploadOptions struct {
	Source       string
	Bucket       string
	Prefix       string
	Includes     []string
	Excludes     []string
	MaxSizeMB    int64
	DryRun       bool
	SkipExisting bool
}

// NewUploadCommand creates the upload command.
func NewUploadCommand() *cobra.Command {
	opts := &UploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload artifacts to object storage",
		Long: `Upload pipeline artifacts to an S3-compatible bucket.

Files are collected recursively from the source directory (hidden files
are skipped unless explicitly included), hashed, and uploaded with
sha256 metadata. With --skip-existing, objects whose size and digest
already match are not re-uploaded.

Endpoint and credentials come from the upload section of nhstage.yaml
or NHSTAGE_UPLOAD__* environment variables.`,
		Example: `  # Upload exported metrics and the warehouse file
  nhstage upload --bucket nh-artifacts

  # Preview without uploading
  nhstage upload --bucket nh-artifacts --dry-run

  # Only CSVs, skipping unchanged objects
  nhstage upload --bucket nh-artifacts --include "*.csv" --skip-existing`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Source directory (default: output dir)")
	cmd.Flags().StringVarP(&opts.Bucket, "bucket", "b", "", "Destination bucket")
	cmd.Flags().StringVarP(&opts.Prefix, "prefix", "p", "", "Object key prefix")
	cmd.Flags().StringArrayVar(&opts.Includes, "include", nil, "Include glob (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Excludes, "exclude", nil, "Exclude glob (repeatable)")
	cmd.Flags().Int64Var(&opts.MaxSizeMB, "max-size-mb", 0, "Skip files larger than this many MB")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List what would be uploaded without uploading")
	cmd.Flags().BoolVar(&opts.SkipExisting, "skip-existing", false, "Skip objects whose size and sha256 already match")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *UploadOptions) error {
	app := appFrom(cmd)

	source := opts.Source
	if source == "" {
		source = app.Cfg.OutputDir
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = app.Cfg.Upload.Bucket
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = app.Cfg.Upload.Prefix
	}

	includes := opts.Includes
	if len(includes) == 0 {
		includes = app.Cfg.Upload.Include
	}
	excludes := opts.Excludes
	if len(excludes) == 0 {
		excludes = app.Cfg.Upload.Exclude
	}
	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = app.Cfg.Upload.MaxSizeMB
	}

	files, err := export.Collect(source, export.Filter{
		Includes:     includes,
		Excludes:     excludes,
		MaxSizeBytes: maxSize * 1024 * 1024,
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to upload")
		return nil
	}

	uploader, err := export.NewUploader(export.Config{
		Endpoint:     app.Cfg.Upload.Endpoint,
		AccessKey:    app.Cfg.Upload.AccessKey,
		SecretKey:    app.Cfg.Upload.SecretKey,
		Region:       app.Cfg.Upload.Region,
		UseSSL:       app.Cfg.Upload.UseSSL,
		Bucket:       bucket,
		Prefix:       prefix,
		SkipExisting: opts.SkipExisting,
		DryRun:       opts.DryRun,
	}, app.Logger)
	if err != nil {
		return err
	}

	sum, err := uploader.Upload(cmd.Context(), files)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	verb := "Uploaded"
	if opts.DryRun {
		verb = "Would upload"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d files (%d skipped, %d bytes)\n",
		verb, sum.Uploaded, sum.Total, sum.Skipped, sum.Bytes)
	return nil
}
