package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

var (
	uploadNoOverwrite bool
	uploadContentType string
	downloadOutput    string
	listPrefix        string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <container> <key> <file|->",
	Short: "Upload a file (or stdin) as a blob",
	Long: `Upload a local file, or standard input when the path is "-", to container/key.

Use "-" as the container to target the configured default container.

Examples:
  dataservice upload reports 2025/q1.csv ./q1.csv
  cat payload.json | dataservice upload - payload.json -
  dataservice upload reports once.bin ./once.bin --no-overwrite
`,
	Args: cobra.ExactArgs(3),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <container> <key>",
	Short: "Download a blob to a file or stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runDownload,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <container> <key>",
	Short: "Delete a blob",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list <container>",
	Short: "List blobs as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadNoOverwrite, "no-overwrite", false, "Fail if the blob already exists")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content type to store (detected when empty)")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Write to this file instead of stdout")
	listCmd.Flags().StringVar(&listPrefix, "prefix", "", "Only list keys starting with this prefix")

	rootCmd.AddCommand(uploadCmd, downloadCmd, deleteCmd, listCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	container, key, path := containerOrDefault(args[0]), args[1], args[2]

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ds, err := newDataService(ctx, metrics.NewNop())
	if err != nil {
		return err
	}
	defer ds.Close()

	result, err := ds.UploadDataWithOptions(ctx, container, key, data, storage.UploadOptions{
		ContentType: uploadContentType,
		Overwrite:   !uploadNoOverwrite,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Identifier())
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()

	ds, err := newDataService(ctx, metrics.NewNop())
	if err != nil {
		return err
	}
	defer ds.Close()

	data, err := ds.DownloadData(ctx, containerOrDefault(args[0]), args[1])
	if err != nil {
		return err
	}

	if downloadOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(downloadOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", downloadOutput, err)
	}
	logger.Info().Str("file", downloadOutput).Int("size", len(data)).Msg("downloaded")
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()

	ds, err := newDataService(ctx, metrics.NewNop())
	if err != nil {
		return err
	}
	defer ds.Close()

	return ds.DeleteData(ctx, containerOrDefault(args[0]), args[1])
}

func runList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()

	ds, err := newDataService(ctx, metrics.NewNop())
	if err != nil {
		return err
	}
	defer ds.Close()

	objects, err := ds.ListData(ctx, containerOrDefault(args[0]), listPrefix)
	if err != nil {
		return err
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}
