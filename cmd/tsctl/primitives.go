package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/spf13/cobra"
)

var (
	primKind       string
	primFrame      string
	primVisible    bool
	primColor      string
	primParams     string
	removeAllPrims bool
)

var primitivesCmd = &cobra.Command{
	Use:     "primitives",
	Aliases: []string{"prims", "primitive"},
	Short:   "Manage geometric primitives",
}

var primitivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered primitives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		prims, err := newClient().Primitives(ctx)
		if err != nil {
			return err
		}
		if len(prims) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No primitives registered.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), primitivesTable(prims))
		return nil
	},
}

var primitivesSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Register or replace a primitive",
	Long: `Register a primitive, or update the primitive with the same name.

Parameters depend on the kind:
  point     x y z
  line      dx dy dz x y z
  plane     nx ny nz d
  box       cx cy cz dx dy dz [rx ry rz | qw qx qy qz]
  cylinder  dx dy dz x y z radius height
  sphere    x y z radius
  frame     x y z [rx ry rz | qw qx qy qz]

Examples:
  tsctl primitives set tip --kind point --frame tool --params "0 0 0"
  tsctl primitives set floor --kind plane --params "0 0 1 0" --visible --color "0.2 0.8 0.2 1"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseFloats(primParams)
		if err != nil {
			return fmt.Errorf("--params: %w", err)
		}
		color, err := parseFloats(primColor)
		if err != nil {
			return fmt.Errorf("--color: %w", err)
		}
		spec := primitive.Spec{
			Name:    args[0],
			Kind:    primKind,
			FrameID: primFrame,
			Visible: primVisible,
			Color:   color,
			Params:  params,
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().SetPrimitive(ctx, spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Primitive %q set (%s in %s)\n", spec.Name, spec.Kind, spec.FrameID)
		return nil
	},
}

var primitivesRemoveCmd = &cobra.Command{
	Use:     "rm [NAME]",
	Aliases: []string{"remove"},
	Short:   "Remove a primitive, or every primitive with --all",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		client := newClient()
		switch {
		case removeAllPrims && len(args) == 0:
			if err := client.RemoveAllPrimitives(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All primitives removed")
			return nil
		case !removeAllPrims && len(args) == 1:
			if err := client.RemovePrimitive(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Primitive %q removed\n", args[0])
			return nil
		default:
			return fmt.Errorf("give either a primitive name or --all")
		}
	},
}

// parseFloats splits space or comma separated numbers. An empty string
// yields nil.
func parseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = v
	}
	return out, nil
}

func init() {
	primitivesSetCmd.Flags().StringVarP(&primKind, "kind", "k", "", "shape kind")
	primitivesSetCmd.Flags().StringVarP(&primFrame, "frame", "f", "world", "frame the shape is attached to")
	primitivesSetCmd.Flags().BoolVar(&primVisible, "visible", false, "render the primitive")
	primitivesSetCmd.Flags().StringVar(&primColor, "color", "", "RGBA color")
	primitivesSetCmd.Flags().StringVar(&primParams, "params", "", "shape parameters")
	_ = primitivesSetCmd.MarkFlagRequired("kind")

	primitivesRemoveCmd.Flags().BoolVar(&removeAllPrims, "all", false, "remove every primitive")

	primitivesCmd.AddCommand(primitivesListCmd, primitivesSetCmd, primitivesRemoveCmd)
	rootCmd.AddCommand(primitivesCmd)
}
