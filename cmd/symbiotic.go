package main

import (
	"log"
	"os"
	"runtime/pprof"

	"github.com/ayazip/symbiotic"
	"github.com/ayazip/symbiotic/modutil"
	"github.com/spf13/cobra"
)

func main() {
	var (
		source     string
		output     string
		cpuprofile string
	)

	cmd := &cobra.Command{
		Use:           "symbiotic <module.ll>",
		Short:         "Register nondeterministic inputs and heap allocations of an LLVM module as named symbolic objects",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return err
				}
				defer func() {
					if err := f.Close(); err != nil {
						log.Fatal("Failed to close", f)
					}
				}()
				if err := pprof.StartCPUProfile(f); err != nil {
					return err
				}
				defer pprof.StopCPUProfile()
			}

			m, err := modutil.ParseFile(args[0])
			if err != nil {
				return err
			}

			res, err := symbiotic.Instrument(symbiotic.Config{
				Module:     m,
				SourcePath: source,
			})
			if err != nil {
				return err
			}
			log.Printf("Replaced %d nondet calls, augmented %d allocations",
				len(res.Replaced), len(res.Augmented))

			out := os.Stdout
			if output != "" {
				if out, err = os.Create(output); err != nil {
					return err
				}
				defer out.Close()
			}
			return modutil.WriteModule(out, m)
		},
	}

	cmd.Flags().StringVar(&source, "source", "",
		"path of the source file the module was compiled from")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"write the transformed module to `file` instead of stdout")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to `file`")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
