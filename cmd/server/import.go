package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/store/postgres"
)

type importOptions struct {
	file           string
	fileType       string
	entity         string
	operator       int64
	mappings       []string
	updateExisting bool
	batchSize      int
	matchMode      string
	noHeader       bool
	delimiter      string
	dayFirst       bool
	dryRun         bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one CSV or spreadsheet file and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Input file (required)")
	cmd.Flags().StringVar(&opts.fileType, "type", "", "File type: csv or excel (default: from the file extension)")
	cmd.Flags().StringVar(&opts.entity, "entity", "", "Entity type: customer or screw (required)")
	cmd.Flags().Int64Var(&opts.operator, "operator", 0, "Operator user id (required)")
	cmd.Flags().StringArrayVar(&opts.mappings, "map", nil, "Column mapping label=field (repeatable)")
	cmd.Flags().BoolVar(&opts.updateExisting, "update-existing", false, "Update rows whose name matches an existing entity")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Rows per batch (default: IMPORT_BATCH_SIZE)")
	cmd.Flags().StringVar(&opts.matchMode, "match-mode", "", "Name matching: contains, exact or fuzzy (default: IMPORT_MATCH_MODE)")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "CSV has no header row")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "", "CSV field delimiter (default: ,)")
	cmd.Flags().BoolVar(&opts.dayFirst, "day-first", false, "Read ambiguous dates as day/month")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate only, write nothing (no database connection, DATABASE_URL not required)")

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}

func runImport(ctx context.Context, out io.Writer, opts importOptions) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return withCode(exitUsage, errors.Wrap(err, "read --file"))
	}
	req, err := buildRequest(opts, data)
	if err != nil {
		return err
	}

	cfg, logger, err := bootstrap(!opts.dryRun)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var result *importer.Result
	if opts.dryRun {
		engine := importer.NewEngine(nil, importer.WithLogger(logger), importer.WithDefaults(engineDefaults(cfg)))
		result, err = engine.Validate(ctx, req)
	} else {
		pool, connErr := postgres.Connect(ctx, cfg.Database)
		if connErr != nil {
			return withCode(exitDB, connErr)
		}
		defer pool.Close()

		engine := importer.NewEngine(postgres.New(pool), importer.WithLogger(logger), importer.WithDefaults(engineDefaults(cfg)))
		result, err = engine.Import(ctx, req)
	}
	if err != nil {
		logger.Error("import failed", zap.String("file", opts.file), zap.Error(err))
		return withCode(runErrorCode(err), err)
	}

	if err := writeReport(out, result); err != nil {
		return err
	}
	if !result.Valid {
		return withCode(exitValidation, errors.Errorf("validation failed: %d errors", len(result.Errors)))
	}
	return nil
}

// buildRequest turns command line options into an import request.
func buildRequest(opts importOptions, data []byte) (importer.Request, error) {
	var req importer.Request

	entity, err := importer.ParseEntityType(opts.entity)
	if err != nil {
		return req, withCode(exitUsage, err)
	}

	fileType := opts.fileType
	if fileType == "" {
		fileType = importer.FileTypeFromName(opts.file)
	}
	format, err := importer.ParseFileFormat(fileType)
	if err != nil {
		return req, withCode(exitUsage, err)
	}

	if opts.operator <= 0 {
		return req, withCode(exitUsage, errors.Errorf("invalid --operator %d", opts.operator))
	}

	mapping, err := parseMappings(opts.mappings)
	if err != nil {
		return req, withCode(exitUsage, err)
	}

	var mode importer.MatchMode
	if opts.matchMode != "" {
		if mode, err = importer.ParseMatchMode(opts.matchMode); err != nil {
			return req, withCode(exitUsage, err)
		}
	}

	var delimiter rune
	if opts.delimiter != "" {
		if utf8.RuneCountInString(opts.delimiter) != 1 {
			return req, withCode(exitUsage, errors.Errorf("invalid --delimiter %q", opts.delimiter))
		}
		delimiter, _ = utf8.DecodeRuneInString(opts.delimiter)
	}

	hasHeader := !opts.noHeader
	return importer.Request{
		Data:       data,
		Format:     format,
		Entity:     entity,
		OperatorID: opts.operator,
		Options: importer.Options{
			HasHeaderRow:   &hasHeader,
			ColumnMapping:  mapping,
			UpdateExisting: opts.updateExisting,
			BatchSize:      opts.batchSize,
			MatchMode:      mode,
			Delimiter:      delimiter,
			DayFirst:       opts.dayFirst,
		},
	}, nil
}

// parseMappings reads repeated label=field pairs. The label may itself
// contain '=' only if the field does not.
func parseMappings(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		i := strings.LastIndex(pair, "=")
		if i <= 0 || i == len(pair)-1 {
			return nil, errors.Errorf("invalid --map %q, want label=field", pair)
		}
		out[strings.TrimSpace(pair[:i])] = strings.TrimSpace(pair[i+1:])
	}
	return out, nil
}

func writeReport(out io.Writer, result *importer.Result) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return withCode(exitDB, errors.Wrap(err, "json encode"))
	}
	return nil
}
