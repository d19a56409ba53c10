// Command photoctl runs the photo pipeline and map clustering against local
// files, using the same configuration as the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"backend-lacakair/internal/cluster"
	"backend-lacakair/internal/config"
	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/ingest"
	"backend-lacakair/internal/marker"
	"backend-lacakair/internal/post"
	"backend-lacakair/internal/shared/logging"
	"backend-lacakair/internal/upload"

	"github.com/spf13/cobra"
)

var newUploader = upload.NewFromConfig

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "photoctl",
		Short:        "Normalize, upload and cluster photos from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().IntVar(&cfg.ImageMaxDimension, "max-dimension", cfg.ImageMaxDimension, "longest side of normalized images")
	root.PersistentFlags().IntVar(&cfg.ImageQuality, "quality", cfg.ImageQuality, "JPEG quality 1-100")
	root.PersistentFlags().Int64Var(&cfg.ImageMaxPixels, "max-pixels", cfg.ImageMaxPixels, "largest source width*height accepted")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(newNormalizeCmd(&cfg), newUploadCmd(&cfg), newClusterCmd(&cfg))
	return root
}

func newNormalizeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <in> <out>",
		Short: "Downscale and re-encode an image as JPEG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRaw(args[0])
			if err != nil {
				return err
			}
			n := imaging.NewNormalizer(cfg.ImageMaxDimension, cfg.ImageQuality, logging.New(cfg.LogLevel),
				imaging.WithMaxPixels(cfg.ImageMaxPixels))
			img, err := n.Normalize(raw)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], img.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %d bytes\n", args[1], img.Width, img.Height, len(img.Data))
			return nil
		},
	}
}

func newUploadCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Normalize and host images, printing one URL per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(cfg.LogLevel)
			uploader, err := newUploader(*cfg, log)
			if err != nil {
				return err
			}

			raws := make([]imaging.RawImage, len(args))
			for i, path := range args {
				if raws[i], err = readRaw(path); err != nil {
					return err
				}
			}

			normalizer := imaging.NewNormalizer(cfg.ImageMaxDimension, cfg.ImageQuality, log,
				imaging.WithMaxPixels(cfg.ImageMaxPixels))
			pipeline := ingest.New(normalizer,
				uploader, cfg.UploadWorkers, ingest.WithLogger(log))
			results, errs := pipeline.ProcessBatch(cmd.Context(), raws)

			var failed []error
			for i, path := range args {
				if errs[i] != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %v\n", path, ingest.Kind(errs[i]), errs[i])
					failed = append(failed, errs[i])
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, results[i].URL)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d uploads failed: %w", len(failed), len(args), errors.Join(failed...))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.UploadBackend, "backend", cfg.UploadBackend, "imgbb or s3")
	cmd.Flags().StringVar(&cfg.UploadEndpoint, "endpoint", cfg.UploadEndpoint, "image host upload endpoint")
	cmd.Flags().StringVar(&cfg.UploadAPIKey, "api-key", cfg.UploadAPIKey, "image host API key")
	cmd.Flags().IntVar(&cfg.UploadWorkers, "workers", cfg.UploadWorkers, "concurrent uploads")
	return cmd
}

func newClusterCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster <posts.json>",
		Short: "Group posts by location and print map markers as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var posts []post.Post
			if err := json.Unmarshal(data, &posts); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			markers := marker.Project(cluster.Build(posts, cfg.ClusterTolerance))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(markers)
		},
	}
	cmd.Flags().Float64Var(&cfg.ClusterTolerance, "tolerance", cfg.ClusterTolerance, "max coordinate difference in degrees on each axis")
	return cmd
}

func readRaw(path string) (imaging.RawImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imaging.RawImage{}, fmt.Errorf("read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return imaging.RawImage{URI: "file://" + abs, Data: data}, nil
}
