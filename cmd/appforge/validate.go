package main

import (
	"fmt"
	"os"

	"github.com/forgeworks/appforge/internal/config"
)

// runValidate checks a partner configuration file and prints findings in a
// stable, scriptable format. Exit status signals validity.
func runValidate() error {
	pcfg, err := config.LoadPartnerConfig(CLI.Validate.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}

	vr := config.ValidateSubmission(CLI.Validate.Partner, pcfg)
	for _, e := range vr.Errors {
		fmt.Fprintf(os.Stdout, "error: %s\n", e)
	}
	for _, w := range vr.Warnings {
		fmt.Fprintf(os.Stdout, "warning: %s\n", w)
	}
	if !vr.Valid() {
		return vr.Err()
	}
	fmt.Fprintf(os.Stdout, "ok: %s (%s)\n", pcfg.AppName, pcfg.PackageName)
	return nil
}
