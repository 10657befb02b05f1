package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

var (
	errNotFound = errors.New("option not found")
	errFailed   = errors.New("operation failed")
)

// optionOutput is the JSON rendering of one stored option
type optionOutput struct {
	Key         string      `json:"key"`
	Value       value.Value `json:"value"`
	IsJSON      bool        `json:"is_json"`
	Autoload    bool        `json:"autoload"`
	DateCreated time.Time   `json:"date_created"`
	DateUpdated time.Time   `json:"date_updated"`
}

// run executes fn under a capture; a storage failure takes precedence over fn's own result
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx, capture := options.WithCapture(cmd.Context())
	err := fn(ctx)
	if cerr := capture.Err(); cerr != nil {
		return cerr
	}
	return err
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// printValue writes strings verbatim and JSON values compactly
func (a *app) printValue(v value.Value) error {
	if s, ok := v.AsString(); ok {
		_, err := fmt.Fprintln(a.out, s)
		return err
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// parseValue reads a command-line argument as JSON when asJSON is set, otherwise as a string
func parseValue(raw string, asJSON bool) (value.Value, error) {
	if !asJSON {
		return value.String(raw), nil
	}
	j, err := value.Parse([]byte(raw))
	if err != nil {
		return value.Value{}, fmt.Errorf("invalid JSON value: %w", err)
	}
	return value.FromJSON(j), nil
}

func newGetCmd(a *app) *cobra.Command {
	var def string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return a.run(cmd, func(ctx context.Context) error {
				row := a.options.Option(ctx, key)
				if row == nil {
					if cmd.Flags().Changed("default") {
						return a.printValue(value.String(def))
					}
					return fmt.Errorf("%w: %s", errNotFound, key)
				}
				return a.printRow(row)
			})
		},
	}

	cmd.Flags().StringVar(&def, "default", "", "value printed when the key is absent")
	return cmd
}

func (a *app) printRow(row *schema.Option) error {
	v, err := value.Decode(row.Value, row.IsJSON)
	if err != nil {
		return fmt.Errorf("option %q: %w", row.Key, err)
	}
	if a.output == outputJSON {
		return a.printJSON(optionOutput{
			Key:         row.Key,
			Value:       v,
			IsJSON:      row.IsJSON,
			Autoload:    row.Autoload,
			DateCreated: row.DateCreated,
			DateUpdated: row.DateUpdated,
		})
	}
	return a.printValue(v)
}

func newSetCmd(a *app) *cobra.Command {
	var (
		asJSON   bool
		autoload bool
	)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or replace an option",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1], asJSON)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context) error {
				if !a.options.Set(ctx, args[0], v, autoload) {
					return errFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "parse the value as JSON")
	cmd.Flags().BoolVar(&autoload, "autoload", false, "mark the option for autoload")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if !a.options.Delete(ctx, args[0]) {
					return fmt.Errorf("%w: %s", errNotFound, args[0])
				}
				return nil
			})
		},
	}
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Print whether a key is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				exists := a.options.Exists(ctx, args[0])
				if a.output == outputJSON {
					return a.printJSON(map[string]bool{"exists": exists})
				}
				_, err := fmt.Fprintln(a.out, exists)
				return err
			})
		},
	}
}

// autoloadFilter turns an optional --autoload flag into the store's tri-state filter
func autoloadFilter(cmd *cobra.Command, flag bool) *bool {
	if !cmd.Flags().Changed("autoload") {
		return nil
	}
	return &flag
}

func newListCmd(a *app) *cobra.Command {
	var autoload bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List options, optionally filtered by autoload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := autoloadFilter(cmd, autoload)
			return a.run(cmd, func(ctx context.Context) error {
				all, err := a.options.GetAll(ctx, filter)
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return a.printJSON(all)
				}
				return a.printTable(all)
			})
		},
	}

	cmd.Flags().BoolVar(&autoload, "autoload", false, "only options whose autoload flag matches")
	return cmd
}

func (a *app) printTable(all map[string]value.Value) error {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tVALUE")
	for _, k := range keys {
		v := all[k]
		kind := "string"
		rendered, _ := v.AsString()
		if j, ok := v.JSON(); ok {
			kind = j.Kind().String()
			data, err := j.MarshalJSON()
			if err != nil {
				return err
			}
			rendered = string(data)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", k, kind, rendered)
	}
	return w.Flush()
}
