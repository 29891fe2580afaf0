package convert

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"pxvp/config"
	"pxvp/state"
)

// setupTestEnv creates a test environment with proper context and logger
func setupTestEnv(t *testing.T) (context.Context, *state.LocalEnv) {
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Log = logger
	env.Cfg = cfg
	return ctx, env
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// newCommand mirrors flags of the real convert command.
func newCommand(in string, out *bytes.Buffer) *cli.Command {
	return &cli.Command{
		Name:   "convert",
		Reader: strings.NewReader(in),
		Writer: out,
		Action: Run,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "overwrite"},
			&cli.BoolFlag{Name: "compact"},
			&cli.StringFlag{Name: "charset"},
			&cli.FloatFlag{Name: "width"},
			&cli.FloatFlag{Name: "height"},
		},
	}
}

func TestConverter_Convert(t *testing.T) {
	_, env := setupTestEnv(t)
	c := newConverter(env, env.Log)

	var out bytes.Buffer
	changed, err := c.convert(strings.NewReader(`.a { width: 192px; height: 108px; gap: 540px; color: red; }`), &out, "test.css")
	if err != nil {
		t.Fatalf("convert() error = %v", err)
	}
	if changed != 3 {
		t.Errorf("convert() changed = %d, want 3", changed)
	}
	want := ".a {\n  width: 10vw;\n  height: 10vh;\n  gap: 50vh 28.125vw;\n  color: red;\n}\n"
	if out.String() != want {
		t.Errorf("convert() output =\n%s\nwant\n%s", out.String(), want)
	}
}

func TestConverter_ConvertEncodings(t *testing.T) {
	_, env := setupTestEnv(t)

	t.Run("utf-8 bom", func(t *testing.T) {
		c := newConverter(env, env.Log)
		var out bytes.Buffer
		in := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`p { width: 192px; }`)...)
		if _, err := c.convert(bytes.NewReader(in), &out, "bom.css"); err != nil {
			t.Fatalf("convert() error = %v", err)
		}
		if out.String() != "p {\n  width: 10vw;\n}\n" {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("forced code page", func(t *testing.T) {
		env.CodePage = charmap.Windows1251
		defer func() { env.CodePage = nil }()

		c := newConverter(env, env.Log)
		var out bytes.Buffer
		// "Текст" in windows-1251
		in := append([]byte(`p::after { content: "`), 0xD2, 0xE5, 0xEA, 0xF1, 0xF2)
		in = append(in, []byte(`"; left: 192px; }`)...)
		if _, err := c.convert(bytes.NewReader(in), &out, "cp.css"); err != nil {
			t.Fatalf("convert() error = %v", err)
		}
		if !strings.Contains(out.String(), `content: "Текст";`) || !strings.Contains(out.String(), "left: 10vw;") {
			t.Errorf("unexpected output %q", out.String())
		}
	})
}

func TestProcess_Directory(t *testing.T) {
	ctx, env := setupTestEnv(t)
	env.Cfg.Output.Suffix = ".vw"

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "main.css"), `body { margin: 0; } .hero { height: 540px; }`)
	writeFile(t, filepath.Join(src, "parts", "card.CSS"), `.card { padding-left: 96px; }`)
	writeFile(t, filepath.Join(src, "parts", "readme.txt"), `width: 16px`)

	if err := process(ctx, src, dst, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "main.vw.css")); !strings.Contains(got, "height: 50vh;") {
		t.Errorf("main.vw.css not converted:\n%s", got)
	}
	if got := readFile(t, filepath.Join(dst, "parts", "card.vw.CSS")); !strings.Contains(got, "padding-left: 5vw;") {
		t.Errorf("card.vw.CSS not converted:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "parts", "readme.vw.txt")); err == nil {
		t.Error("non stylesheet file must be skipped")
	}
}

func TestProcess_SingleFileOverwrite(t *testing.T) {
	ctx, env := setupTestEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "site.css")
	writeFile(t, path, `p { top: 108px; }`)

	// converting in place is refused unless overwrite is requested
	if err := process(ctx, path, dir, env.Log); err == nil {
		t.Fatal("expected error for existing output file")
	}
	if got := readFile(t, path); got != `p { top: 108px; }` {
		t.Errorf("source changed without overwrite: %q", got)
	}

	env.Overwrite = true
	if err := process(ctx, path, dir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readFile(t, path); got != "p {\n  top: 10vh;\n}\n" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestProcess_Errors(t *testing.T) {
	ctx, env := setupTestEnv(t)

	if err := process(ctx, filepath.Join(t.TempDir(), "missing.css"), t.TempDir(), env.Log); err == nil {
		t.Error("expected error for missing source")
	}

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.css"), `p { top: 0; }`)
	writeFile(t, filepath.Join(src, "b.css"), `p { top: 0; }`)
	writeFile(t, filepath.Join(dst, "a.css"), `existing`)
	writeFile(t, filepath.Join(dst, "b.css"), `existing`)

	err := process(ctx, src, dst, env.Log)
	if err == nil {
		t.Fatal("expected error")
	}
	// both failures are reported
	if !strings.Contains(err.Error(), "a.css") || !strings.Contains(err.Error(), "b.css") {
		t.Errorf("error does not mention both files: %v", err)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.css"), `p { top: 0; }`)

	if err := process(ctx, src, t.TempDir(), env.Log); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestConverter_Collect(t *testing.T) {
	ctx, env := setupTestEnv(t)
	env.Cfg.Output.Extensions = []string{".css", ".pcss"}
	c := newConverter(env, env.Log)

	dir := t.TempDir()
	for _, name := range []string{"file10.css", "file2.css", "file1.pcss", filepath.Join("sub", "x.css"), "skip.js"} {
		writeFile(t, filepath.Join(dir, name), "")
	}

	files, err := c.collect(ctx, dir)
	if err != nil {
		t.Fatalf("collect() error = %v", err)
	}
	want := []string{"file1.pcss", "file2.css", "file10.css", filepath.Join("sub", "x.css")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("collect() mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Stream(t *testing.T) {
	ctx, _ := setupTestEnv(t)

	var out bytes.Buffer
	cmd := newCommand(`.a{padding:54px}`, &out)
	if err := cmd.Run(ctx, []string{"convert", "--compact", "-"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := ".a{padding:5vh 2.8125vw}\n"
	if out.String() != want {
		t.Errorf("Run() output = %q, want %q", out.String(), want)
	}
}

func TestRun_Overrides(t *testing.T) {
	ctx, env := setupTestEnv(t)

	var out bytes.Buffer
	cmd := newCommand(`.a{width:75px;height:100px}`, &out)
	if err := cmd.Run(ctx, []string{"convert", "--width", "750", "--height", "1000", "-"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "width: 10vw;") || !strings.Contains(out.String(), "height: 10vh;") {
		t.Errorf("unexpected output %q", out.String())
	}
	if env.Cfg.Viewport.DesignWidth != 750 {
		t.Errorf("DesignWidth = %v, want 750", env.Cfg.Viewport.DesignWidth)
	}

	cmd = newCommand(``, &out)
	if err := cmd.Run(ctx, []string{"convert", "--width", "0", "-"}); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestRun_NoSource(t *testing.T) {
	ctx, _ := setupTestEnv(t)

	var out bytes.Buffer
	if err := newCommand("", &out).Run(ctx, []string{"convert"}); err == nil {
		t.Error("expected error without source")
	}
}

func TestRun_Files(t *testing.T) {
	ctx, _ := setupTestEnv(t)

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.css"), `.a { margin-top: 54px; }`)

	var out bytes.Buffer
	if err := newCommand("", &out).Run(ctx, []string{"convert", "--charset", "no-such-charset", src, dst}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "a.css")); got != ".a {\n  margin-top: 5vh;\n}\n" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestConverter_OutputPath(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		rel    string
		want   string
	}{
		{"no suffix", "", "a.css", filepath.Join("out", "a.css")},
		{"suffix", ".vw", "a.css", filepath.Join("out", "a.vw.css")},
		{"nested", "-vp", filepath.Join("x", "y", "b.min.css"), filepath.Join("out", "x", "y", "b.min-vp.css")},
		{"no extension", ".vw", "plain", filepath.Join("out", "plain.vw")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &converter{suffix: tt.suffix}
			if got := c.outputPath(tt.rel, "out"); got != tt.want {
				t.Errorf("outputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
