package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/callbridge/internal/wasmenc"
	"github.com/wippyai/callbridge/trampoline"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [struct...]",
	Short: "Print wasm32 struct layouts and function-pointer slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		structs := e.layouts.Structs()
		if len(args) > 0 {
			structs = structs[:0:0]
			for _, name := range args {
				st, ok := e.layouts.Lookup(name)
				if !ok {
					return fmt.Errorf("unknown struct %q", name)
				}
				structs = append(structs, st)
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, st := range structs {
			kind := "data"
			if st.Class {
				kind = "class"
			}
			fmt.Fprintf(w, "%s\tsize=%d\talign=%d\t%s\n", displayName(st), st.Size, st.Align, kind)
			for _, f := range st.Fields {
				typ := f.Type.String()
				if f.IsFunc() {
					typ = f.Func.Signature()
				}
				if f.Count > 0 {
					typ = fmt.Sprintf("%s[%d]", typ, f.Count)
				}
				fmt.Fprintf(w, "  +%d\t%s\t%s\t%d\n", f.Offset, f.Name, typ, f.Size)
			}
			for _, slot := range st.Slots() {
				fmt.Fprintf(w, "  slot\t%s\t@%d\t\n", slot.Path, slot.Offset)
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	},
}

var tableCmd = &cobra.Command{
	Use:   "table [struct.slot...]",
	Short: "Print native to host translation tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(args)
		if err != nil {
			return err
		}
		set, err := e.buildSet()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range set.Trampolines() {
			fmt.Fprintf(out, "#%d %s  %s\n", t.ID, t.Name(), t.Sig.HostSignature())
			fmt.Fprintf(out, "   %s\n", t.Sig.Func.Decl)
			if err := t.Sig.WriteTable(out); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var genOut string

var genCmd = &cobra.Command{
	Use:   "gen [struct.slot...]",
	Short: "Generate the trampoline module and the native proxy header",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(args)
		if err != nil {
			return err
		}
		set, err := e.buildSet()
		if err != nil {
			return err
		}
		if set.Len() == 0 {
			return fmt.Errorf("no slots selected")
		}
		if err := os.MkdirAll(genOut, 0o755); err != nil {
			return err
		}

		wasm := set.Module()
		wasmPath := filepath.Join(genOut, set.Namespace()+".trampolines.wasm")
		if err := os.WriteFile(wasmPath, wasm, 0o644); err != nil {
			return err
		}

		var hdr bytes.Buffer
		if err := trampoline.EmitC(&hdr, set); err != nil {
			return err
		}
		hdrPath := filepath.Join(genOut, "callbridge_"+strings.ToLower(set.Namespace())+".h")
		if err := os.WriteFile(hdrPath, hdr.Bytes(), 0o644); err != nil {
			return err
		}

		e.log.Info("generated",
			zap.String("module", wasmPath),
			zap.String("header", hdrPath),
			zap.Int("trampolines", set.Len()),
			zap.Int("dispatches", len(set.Dispatches())))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d bytes, table %d)\n", wasmPath, len(wasm), set.TableSize())
		sections, err := wasmenc.Sections(wasm)
		if err != nil {
			return err
		}
		for _, s := range sections {
			fmt.Fprintf(out, "  %-8s %d\n", s.Name(), s.Size)
		}
		fmt.Fprintln(out, hdrPath)
		return nil
	},
}

var (
	probeResult string
	probeAbort  bool
)

var probeCmd = &cobra.Command{
	Use:   "probe struct.slot [arg...]",
	Short: "Call a slot from a synthetic native guest and show what the callback receives",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		res, err := runProbe(cmd.Context(), e, probeRequest{
			Slot:   args[0],
			Args:   args[1:],
			Result: probeResult,
			Abort:  probeAbort,
		})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), res.String())
		return nil
	},
}

func init() {
	genCmd.Flags().StringVarP(&genOut, "output", "o", ".", "output directory")
	probeCmd.Flags().StringVar(&probeResult, "result", "", "value the callback returns")
	probeCmd.Flags().BoolVar(&probeAbort, "abort", false, "use the abort fallback policy")

	rootCmd.AddCommand(inspectCmd, tableCmd, genCmd, probeCmd, browseCmd)
}
