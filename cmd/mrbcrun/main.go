// Command mrbcrun loads a RITE02 bytecode image and runs it against a
// fresh Runtime, the Go-native host binary standing in for the
// reference implementation's embedded main loop (spec §6.2).
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/rtenv"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// fileConfig is the --config YAML shape (spec's Configuration section):
// every field is optional, and a zero value means "leave the flag/
// default in place" rather than "set to zero."
type fileConfig struct {
	PoolSize       int    `yaml:"pool-size"`
	SymbolCapacity int    `yaml:"symbol-capacity"`
	Interner       string `yaml:"interner"` // "linear" or "bst"
	LogLevel       string `yaml:"log-level"`
	LogJSON        bool   `yaml:"log-json"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	buf, err := os.ReadFile(path)
	if err != nil {
		return fc, errors.Wrap(err, "mrbcrun: reading config file")
	}
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return fc, errors.Wrap(err, "mrbcrun: parsing config file")
	}
	return fc, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		poolSize   int
		symCap     int
		interner   string
		logLevel   string
		jsonLogs   bool
		configPath string
	)

	root := &cobra.Command{
		Use:   "mrbcrun",
		Short: "Run, disassemble, or report on RITE02 bytecode images",
	}
	root.PersistentFlags().IntVar(&poolSize, "pool-size", 64*1024, "backing byte-pool size")
	root.PersistentFlags().IntVar(&symCap, "symbol-capacity", 256, "symbol table capacity")
	root.PersistentFlags().StringVar(&interner, "interner", "linear", "linear|bst symbol table search strategy")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "panic|fatal|error|warn|info|debug|trace")
	root.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "emit structured JSON logs instead of text")
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overriding the flag defaults above")

	buildConfig := func() (rtenv.Config, error) {
		cfg := rtenv.DefaultConfig()
		cfg.PoolSize = poolSize
		cfg.SymbolCapacity = symCap
		if interner == "bst" {
			cfg.InternerStrategy = symtab.BST
		}
		if lvl, err := logrus.ParseLevel(logLevel); err == nil {
			cfg.LogLevel = lvl
		}
		cfg.LogFormatJSON = jsonLogs

		if configPath == "" {
			return cfg, nil
		}
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return cfg, err
		}
		if fc.PoolSize != 0 {
			cfg.PoolSize = fc.PoolSize
		}
		if fc.SymbolCapacity != 0 {
			cfg.SymbolCapacity = fc.SymbolCapacity
		}
		switch fc.Interner {
		case "bst":
			cfg.InternerStrategy = symtab.BST
		case "linear":
			cfg.InternerStrategy = symtab.Linear
		}
		if fc.LogLevel != "" {
			if lvl, err := logrus.ParseLevel(fc.LogLevel); err == nil {
				cfg.LogLevel = lvl
			}
		}
		if fc.LogJSON {
			cfg.LogFormatJSON = true
		}
		return cfg, nil
	}

	root.AddCommand(newRunCmd(buildConfig))
	root.AddCommand(newDisasmCmd(buildConfig))
	root.AddCommand(newStatsCmd(buildConfig))
	return root
}

func newRunCmd(buildConfig func() (rtenv.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file.mrb>",
		Short: "Load and execute a bytecode image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			rt, err := rtenv.NewRuntime(cfg)
			if err != nil {
				return err
			}
			task, err := rt.CreateTask(buf)
			if err != nil {
				return err
			}
			_, ok, err := task.Run()
			if err != nil {
				return err
			}
			if !ok {
				exc := task.Exception()
				fmt.Fprintf(cmd.ErrOrStderr(), "uncaught exception: %s\n", exc.ExceptionMessage())
				return fmt.Errorf("task raised an uncaught exception")
			}
			return nil
		},
	}
}

func newDisasmCmd(buildConfig func() (rtenv.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file.mrb>",
		Short: "Print the loaded irep tree's shape without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			rt, err := rtenv.NewRuntime(cfg)
			if err != nil {
				return err
			}
			ldr := irep.NewLoader(buf, rt.Symtab, rt.Pool)
			root, err := ldr.Load()
			if err != nil {
				return err
			}
			defer root.Release(rt.Pool)
			printIrepTree(cmd.OutOrStdout(), root, 0)
			return nil
		},
	}
}

func printIrepTree(w io.Writer, ir *irep.Irep, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%sirep nlocals=%d nregs=%d ilen=%d pool=%d syms=%d children=%d\n",
		indent, ir.NLocals, ir.NRegs, ir.ILen, len(ir.Pool), len(ir.Syms), len(ir.Children))
	for _, c := range ir.Children {
		printIrepTree(w, c, depth+1)
	}
}

func newStatsCmd(buildConfig func() (rtenv.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.mrb>",
		Short: "Run a bytecode image and report pool occupancy afterward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			rt, err := rtenv.NewRuntime(cfg)
			if err != nil {
				return err
			}
			task, err := rt.CreateTask(buf)
			if err != nil {
				return err
			}
			if _, _, err := task.Run(); err != nil {
				return err
			}
			st := rt.Pool.Statistics()
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d used=%d free=%d fragments=%d used_blocks=%d\n",
				st.Total, st.Used, st.Free, st.Fragments, st.UsedBlocks)
			return nil
		},
	}
}
