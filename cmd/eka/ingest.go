package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

type ingestFlags struct {
	urls   []string
	source string
}

func newIngestCmd(env *environment) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest [FILE_OR_GLOB...]",
		Short: "Upload files or URLs for ingestion",
		Long: `Upload files for ingestion. Patterns support ** and are expanded
without the shell, so quote them: eka ingest 'contracts/**/*.pdf'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(flags.urls) == 0 {
				return errors.New("nothing to ingest: give files or --url")
			}
			return runIngest(cmd.Context(), env, flags, args)
		},
	}
	cmd.Flags().StringArrayVar(&flags.urls, "url", nil, "web page or video URL to ingest (repeatable)")
	cmd.Flags().StringVar(&flags.source, "source", "", "source type for URLs (default: detect)")
	return cmd
}

func runIngest(ctx context.Context, env *environment, flags ingestFlags, patterns []string) error {
	files, err := expandPatterns(patterns)
	if err != nil {
		return err
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		res, err := env.client.UploadFile(ctx, path, f, env.cfg.Mode)
		f.Close()
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		env.log.Debug().Str("file", path).Str("doc", res.DocID).Msg("ingested")
		fmt.Fprintf(env.stdout, "%s -> %s (%d chunks)\n", path, res.DocID, res.Chunks)
	}
	for _, u := range flags.urls {
		res, err := env.client.IngestURL(ctx, u, env.cfg.Mode, flags.source)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", u, err)
		}
		fmt.Fprintf(env.stdout, "%s -> %s (%d chunks)\n", u, res.DocID, res.Chunks)
	}
	return nil
}

// expandPatterns resolves glob patterns to regular files, keeping argument
// order and dropping duplicates. A pattern matching nothing is an error.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}
