package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"pxvp/preset"
	"pxvp/state"
)

// Declarations converts declarations given on the command line and prints
// them one per line.
func Declarations(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("decl")

	if err := applyOverrides(cmd, env); err != nil {
		return err
	}
	if cmd.Args().Len() == 0 {
		return errors.New("no declarations have been specified")
	}

	util, err := parseDeclarations(cmd.Args().Slice())
	if err != nil {
		return err
	}
	log.Debug("Converting declarations", zap.Int("count", len(util.Entries)))

	preset.New(env.Cfg.Viewport.Options(), log).Postprocess(util)
	return printDeclarations(cmd.Root().Writer, util)
}

// parseDeclarations accepts "property: value" with optional trailing ";".
func parseDeclarations(args []string) (*preset.Util, error) {
	util := &preset.Util{Entries: make([]preset.Entry, 0, len(args))}
	for _, arg := range args {
		prop, value, found := strings.Cut(arg, ":")
		prop = strings.TrimSpace(prop)
		if !found || prop == "" {
			return nil, fmt.Errorf("malformed declaration %q, expected \"property: value\"", arg)
		}
		// custom properties are case sensitive
		if !strings.HasPrefix(prop, "--") {
			prop = strings.ToLower(prop)
		}
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), ";"))
		util.Entries = append(util.Entries, preset.Entry{Key: prop, Value: value})
	}
	return util, nil
}

func printDeclarations(w io.Writer, util *preset.Util) error {
	for _, e := range util.Entries {
		if _, err := fmt.Fprintf(w, "%s: %v;\n", e.Key, e.Value); err != nil {
			return fmt.Errorf("unable to write declaration: %w", err)
		}
	}
	return nil
}
