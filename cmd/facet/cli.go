package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/app"
	"github.com/hpungsan/facet/internal/chat"
	"github.com/hpungsan/facet/internal/config"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/mcp"
	"github.com/hpungsan/facet/internal/ops"
	"github.com/hpungsan/facet/internal/persona"
	"github.com/hpungsan/facet/internal/web"
)

// maxStdinBytes bounds what commands read from stdin.
const maxStdinBytes = 8 << 20

// loader returns the configured services, connecting them on first call.
type loader func(ctx context.Context) (*config.Config, *zap.Logger, app.Services, error)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(load loader) *cli.App {
	cliApp := &cli.App{
		Name:    "facet",
		Usage:   "Extract, store and chat with personas",
		Version: Version,
		Commands: []*cli.Command{
			extractCmd(load),
			saveCmd(load),
			getCmd(load),
			metadataCmd(load),
			listCmd(load),
			updateCmd(load),
			deleteCmd(load),
			chatCmd(load),
			cacheCmd(load),
			exportCmd(load),
			importCmd(load),
			serveCmd(load),
			mcpCmd(load),
			configCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// extractCmd creates the extract command.
func extractCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract a persona from text and links (text may also be piped via stdin)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "text", Aliases: []string{"t"}, Usage: "Text block (repeatable)"},
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "File whose content is one text block (repeatable)"},
			&cli.StringSliceFlag{Name: "link", Aliases: []string{"l"}, Usage: "Related URL (repeatable)"},
			&cli.BoolFlag{Name: "save", Usage: "Save the extracted persona"},
		},
		Action: func(c *cli.Context) error {
			blocks := c.StringSlice("text")
			for _, path := range c.StringSlice("file") {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(errors.NewValidation(fmt.Sprintf("failed to read %s: %v", path, err)))
				}
				blocks = append(blocks, string(data))
			}
			if len(blocks) == 0 && len(c.StringSlice("link")) == 0 && stdinHasData(c.App.Reader) {
				text, err := readStdin(c.App.Reader)
				if err != nil {
					return outputError(err)
				}
				if text != "" {
					blocks = append(blocks, text)
				}
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			result, err := svc.Extractor.Extract(c.Context, persona.NewInput(blocks, c.StringSlice("link")))
			if err != nil {
				return outputError(err)
			}

			if !c.Bool("save") {
				return outputJSON(c, result)
			}

			saved, err := svc.Personas.Save(c.Context, result.Persona)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{
				"extraction": result,
				"saved":      saved,
			})
		},
	}
}

// saveCmd creates the save command.
func saveCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save a persona (reads persona JSON or extract output from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Persona id (default: generated)"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPersona(c)
			if err != nil {
				return outputError(err)
			}
			if id := c.String("id"); id != "" {
				p.ID = id
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Save(c.Context, p)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// getCmd creates the get command.
func getCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a persona by id",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Get(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// metadataCmd creates the metadata command.
func metadataCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "metadata",
		Usage:     "Fetch a persona's metadata record",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.GetMetadata(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved personas, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.List(c.Context, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace a saved persona (reads persona JSON from stdin)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			p, err := readPersona(c)
			if err != nil {
				return outputError(err)
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Update(c.Context, id, p)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a persona and its metadata",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Delete(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// chatCmd creates the chat command.
func chatCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send one message to a persona",
		ArgsUsage: "<id> <message...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "history", Usage: "JSON file with earlier turns: [{\"role\":\"user\",\"content\":\"...\"}]"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			message := strings.Join(c.Args().Tail(), " ")

			var history []chat.Turn
			if path := c.String("history"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(errors.NewValidation(fmt.Sprintf("failed to read %s: %v", path, err)))
				}
				if err := json.Unmarshal(data, &history); err != nil {
					return outputError(errors.NewValidation(fmt.Sprintf("invalid history file: %v", err)))
				}
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Chat.Reply(c.Context, chat.Request{
				PersonaID: id,
				Message:   message,
				History:   history,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// cacheCmd creates the cache command group.
func cacheCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the extraction cache",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cached entry count and keys",
				Action: func(c *cli.Context) error {
					_, _, svc, err := load(c.Context)
					if err != nil {
						return err
					}
					stats, err := svc.Cache.Stats(c.Context)
					if err != nil {
						return outputError(errors.NewStorage("failed to read cache stats", err))
					}
					return outputJSON(c, stats)
				},
			},
			{
				Name:  "clear",
				Usage: "Drop every cached extraction",
				Action: func(c *cli.Context) error {
					_, _, svc, err := load(c.Context)
					if err != nil {
						return err
					}
					if err := svc.Cache.Clear(c.Context); err != nil {
						return outputError(errors.NewStorage("failed to clear cache", err))
					}
					return outputJSON(c, map[string]bool{"cleared": true})
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all personas to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: exports directory)"},
		},
		Action: func(c *cli.Context) error {
			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Export(c.Context, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import personas from a JSONL file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("import path is required"))
			}

			_, _, svc, err := load(c.Context)
			if err != nil {
				return err
			}

			output, err := svc.Personas.Import(c.Context, ops.ImportInput{
				Path: c.Args().First(),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (overrides config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, svc, err := load(c.Context)
			if err != nil {
				return err
			}
			if c.IsSet("bind") {
				cfg.Server.BindAddr = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			return web.Run(web.NewServer(svc, cfg, logger, Version), logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(load loader) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			cfg, logger, svc, err := load(c.Context)
			if err != nil {
				return err
			}
			return mcp.Run(svc, cfg, logger, Version)
		},
	}
}

// configCmd creates the config command.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Describe the environment variables facet reads",
		Action: func(c *cli.Context) error {
			help, err := config.EnvHelp()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			_, err = fmt.Fprintln(c.App.Writer, help)
			return err
		},
	}
}

// Helper functions

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if fErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", fErr.Code, fErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func requireID(c *cli.Context) (string, error) {
	if c.NArg() < 1 || strings.TrimSpace(c.Args().First()) == "" {
		return "", errors.NewValidation("persona id is required",
			errors.FieldError{Field: "id", Message: "is required"})
	}
	return c.Args().First(), nil
}

// readPersona decodes a persona from stdin. Extract output, which wraps the
// persona in a "persona" field, is accepted too.
func readPersona(c *cli.Context) (*persona.Persona, error) {
	if !stdinHasData(c.App.Reader) {
		return nil, errors.NewValidation("persona JSON must be piped via stdin")
	}
	text, err := readStdin(c.App.Reader)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.NewValidation("persona JSON is required")
	}

	var wrapped struct {
		Persona *persona.Persona `json:"persona"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, errors.NewValidation(fmt.Sprintf("invalid persona JSON: %v", err))
	}
	if wrapped.Persona != nil {
		return wrapped.Persona, nil
	}

	var p persona.Persona
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, errors.NewValidation(fmt.Sprintf("invalid persona JSON: %v", err))
	}
	return &p, nil
}

// stdinHasData returns true if r has piped data (not a terminal).
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of r, up to maxStdinBytes.
func readStdin(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxStdinBytes+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if len(data) > maxStdinBytes {
		return "", errors.NewValidation(fmt.Sprintf("stdin exceeds %d bytes", maxStdinBytes))
	}
	return strings.TrimSpace(string(data)), nil
}
