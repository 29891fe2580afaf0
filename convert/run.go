package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pxvp/css"
	"pxvp/preset"
	"pxvp/state"
)

// StreamName is used as SOURCE to read stylesheet from standard input and
// write result to standard output.
const StreamName = "-"

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	if err := applyOverrides(cmd, env); err != nil {
		return err
	}
	env.Overwrite = cmd.Bool("overwrite")
	if cmd.IsSet("compact") {
		env.Cfg.Output.Compact = cmd.Bool("compact")
	}

	// Stylesheets without BOM are expected to be UTF-8 unless told otherwise
	cp := cmd.String("charset")
	if len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Decoding all stylesheets without BOM", zap.String("charset", n))
		}
	}

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src == StreamName {
		c := newConverter(env, log)
		c.quiet = true
		_, err := c.convert(cmd.Root().Reader, cmd.Root().Writer, "STDIN")
		return err
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst),
		zap.Float64("width", env.Cfg.Viewport.DesignWidth), zap.Float64("height", env.Cfg.Viewport.DesignHeight))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, log)
}

// applyOverrides replaces configured design dimensions with command line
// values.
func applyOverrides(cmd *cli.Command, env *state.LocalEnv) error {
	for _, o := range []struct {
		flag string
		val  *float64
	}{
		{"width", &env.Cfg.Viewport.DesignWidth},
		{"height", &env.Cfg.Viewport.DesignHeight},
	} {
		if !cmd.IsSet(o.flag) {
			continue
		}
		v := cmd.Float(o.flag)
		if v <= 0 {
			return fmt.Errorf("design %s must be positive, got %v", o.flag, v)
		}
		*o.val = v
	}
	return nil
}

// process handles the core conversion logic independently of CLI framework.
// Source could be either single stylesheet or directory, all failures are
// reported and combined into returned error.
func process(ctx context.Context, src, dst string, log *zap.Logger) error {
	c := newConverter(state.EnvFromContext(ctx), log)

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}

	var files []string
	switch {
	case fi.Mode().IsDir():
		if files, err = c.collect(ctx, src); err != nil {
			return fmt.Errorf("unable to process directory: %w", err)
		}
		if len(files) == 0 {
			log.Info("Nothing to process", zap.String("dir", src))
			return nil
		}
	case fi.Mode().IsRegular():
		files = []string{filepath.Base(src)}
		src = filepath.Dir(src)
	default:
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}

	var errs error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := c.processFile(filepath.Join(src, rel), rel, dst); err != nil {
			log.Error("Unable to process file", zap.String("file", rel), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
		}
	}
	return errs
}

// converter processes stylesheets with the same settings.
type converter struct {
	parser   *css.Parser
	preset   *preset.Preset
	writer   css.Writer
	suffix   string
	exts     []string
	codePage encoding.Encoding

	overwrite bool
	// quiet moves stylesheet warnings to debug level, used when output goes
	// to the console
	quiet bool

	log *zap.Logger
}

func newConverter(env *state.LocalEnv, log *zap.Logger) *converter {
	return &converter{
		parser:    css.NewParser(log),
		preset:    preset.New(env.Cfg.Viewport.Options(), log),
		writer:    css.Writer{Compact: env.Cfg.Output.Compact},
		suffix:    env.Cfg.Output.Suffix,
		exts:      env.Cfg.Output.Extensions,
		codePage:  env.CodePage,
		overwrite: env.Overwrite,
		log:       log,
	}
}

// collect returns paths of stylesheets under dir relative to it in natural
// order.
func (c *converter) collect(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			c.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !c.accepts(path) {
			c.log.Debug("Skipping file, not a stylesheet", zap.String("file", path))
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(natural.StringSlice(files))
	return files, nil
}

func (c *converter) accepts(path string) bool {
	ext := filepath.Ext(path)
	return slices.ContainsFunc(c.exts, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// outputPath keeps relative directory structure of the source under dst.
func (c *converter) outputPath(rel, dst string) string {
	ext := filepath.Ext(rel)
	name := strings.TrimSuffix(filepath.Base(rel), ext) + c.suffix + ext
	return filepath.Join(dst, filepath.Dir(rel), name)
}

func (c *converter) processFile(path, rel, dst string) error {
	out := c.outputPath(rel, dst)
	if !c.overwrite {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("output file already exists: %s", out)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	changed, err := c.convert(f, &buf, rel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("unable to write output file: %w", err)
	}
	c.log.Info("Stylesheet converted", zap.String("from", rel), zap.String("to", out), zap.Int("changed", changed))
	return nil
}

// convert reads stylesheet from r, rewrites pixel values and writes result
// to w. It returns number of rewritten declarations.
func (c *converter) convert(r io.Reader, w io.Writer, name string) (int, error) {
	data, err := io.ReadAll(c.decoder(r))
	if err != nil {
		return 0, fmt.Errorf("unable to read stylesheet: %w", err)
	}

	sheet := c.parser.Parse(data, name)
	for _, warn := range sheet.Warnings {
		if c.quiet {
			c.log.Debug("Stylesheet problem", zap.String("source", name), zap.String("warning", warn))
		} else {
			c.log.Warn("Stylesheet problem", zap.String("source", name), zap.String("warning", warn))
		}
	}

	changed := sheet.Apply(c.preset)
	if _, err := c.writer.Write(w, sheet); err != nil {
		return changed, fmt.Errorf("unable to write stylesheet: %w", err)
	}
	return changed, nil
}

// decoder honors BOM if present, otherwise uses forced code page or assumes
// UTF-8.
func (c *converter) decoder(r io.Reader) io.Reader {
	fallback := encoding.Nop.NewDecoder()
	if c.codePage != nil {
		fallback = c.codePage.NewDecoder()
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback))
}
