package main

import (
	"flag"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// flagValues lists the closed value sets some flags accept.
var flagValues = map[string]complete.Predictor{
	"kind": predict.Set{"expense", "income", "transfer", "cash", "bank", "card", "savings"},
}

// completion describes every registered subcommand and its flags for shell
// completion. Run `COMP_INSTALL=1 ledgerctl` to install it.
func completion(cmds []subcommands.Command) *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: map[string]complete.Predictor{},
	}
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		root.Flags[f.Name] = predictor(f)
	})

	for _, c := range cmds {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)

		sub := &complete.Command{Flags: map[string]complete.Predictor{}}
		fs.VisitAll(func(f *flag.Flag) {
			sub.Flags[f.Name] = predictor(f)
		})
		if c.Name() == "sweep" {
			sub.Args = predict.Set{"snapshots", "budget"}
		}
		root.Sub[c.Name()] = sub
	}
	return root
}

// predictor returns nil for boolean flags, which take no value.
func predictor(f *flag.Flag) complete.Predictor {
	if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
		return nil
	}
	if p, ok := flagValues[f.Name]; ok {
		return p
	}
	return predict.Something
}
