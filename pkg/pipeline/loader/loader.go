// Package loader reads pipeline descriptions from YAML or JSON files.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/askiada/pipedef/pkg/pipeline"
)

// Format is the encoding of a pipeline file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDuplicatePipeline = errors.New("duplicate pipeline id")
)

const defaultConcurrency = 4

// FormatFromPath guesses the format of a file from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}

	return "", errors.Wrapf(ErrUnsupportedFormat, "%q", path)
}

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	}

	return "", errors.Wrapf(ErrUnsupportedFormat, "%q", name)
}

// DecodeDocument reads a single pipeline document. Unknown fields are rejected.
func DecodeDocument(r io.Reader, format Format) (pipeline.Document, error) {
	var doc pipeline.Document

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)

		err := dec.Decode(&doc)
		if err != nil {
			return doc, errors.Wrap(err, "unable to decode yaml document")
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()

		err := dec.Decode(&doc)
		if err != nil {
			return doc, errors.Wrap(err, "unable to decode json document")
		}
	default:
		return doc, errors.Wrapf(ErrUnsupportedFormat, "%q", string(format))
	}

	return doc, nil
}

// Decode reads and validates a single pipeline.
func Decode(r io.Reader, format Format) (*pipeline.Pipeline, error) {
	doc, err := DecodeDocument(r, format)
	if err != nil {
		return nil, err
	}

	return pipeline.FromDocument(doc)
}

// Encode writes the document form of pipe.
func Encode(w io.Writer, pipe *pipeline.Pipeline, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(pipe.Document())
		if err != nil {
			return errors.Wrap(err, "unable to encode yaml document")
		}

		return errors.Wrap(enc.Close(), "unable to flush yaml document")
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return errors.Wrap(enc.Encode(pipe.Document()), "unable to encode json document")
	}

	return errors.Wrapf(ErrUnsupportedFormat, "%q", string(format))
}

// LoadFile reads and validates the pipeline stored at path.
func LoadFile(path string) (*pipeline.Pipeline, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	pipe, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", path)
	}

	return pipe, nil
}

// Option configures a Loader.
type Option func(l *Loader)

// WithLogger sets the logger used to report loaded files.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithConcurrency sets how many files are decoded at the same time.
func WithConcurrency(concurrency int) Option {
	return func(l *Loader) {
		if concurrency > 0 {
			l.concurrency = concurrency
		}
	}
}

// Loader loads every pipeline of a directory.
type Loader struct {
	logger      zerolog.Logger
	concurrency int
}

// New creates a Loader. It is silent unless a logger is given.
func New(opts ...Option) *Loader {
	ldr := &Loader{
		logger:      zerolog.Nop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(ldr)
	}

	return ldr
}

// Files lists the pipeline files under dir, recursively and in lexical order.
func (l *Loader) Files(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		if _, err := FormatFromPath(path); err == nil {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to walk %s", dir)
	}

	sort.Strings(files)

	return files, nil
}

// LoadDir loads every pipeline file under dir. It stops at the first invalid file and fails
// if two files describe the same pipeline id. Pipelines are returned sorted by id.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]*pipeline.Pipeline, error) {
	files, err := l.Files(dir)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		byID  = make(map[string]string, len(files))
		pipes = make([]*pipeline.Pipeline, 0, len(files))
	)

	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(l.concurrency)

	for _, file := range files {
		errGrp.Go(func() error {
			select {
			case <-dCtx.Done():
				return errors.Wrap(dCtx.Err(), file)
			default:
			}

			pipe, err := LoadFile(file)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			if other, ok := byID[pipe.ID()]; ok {
				return errors.Wrapf(ErrDuplicatePipeline, "%q is defined in %s and %s", pipe.ID(), other, file)
			}

			byID[pipe.ID()] = file
			pipes = append(pipes, pipe)

			l.logger.Debug().
				Str("file", file).
				Str("pipeline", pipe.ID()).
				Int("steps", len(pipe.Steps())).
				Msg("pipeline loaded")

			return nil
		})
	}

	err = errGrp.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(pipes, func(i, j int) bool {
		return pipes[i].ID() < pipes[j].ID()
	})

	l.logger.Info().Str("dir", dir).Int("pipelines", len(pipes)).Msg("pipelines loaded")

	return pipes, nil
}
