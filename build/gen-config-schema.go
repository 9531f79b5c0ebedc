// gen-config-schema writes the JSON schema of the installer configuration.
// With -check it fails instead if the file on disk is out of date.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/akedrou/textdiff"

	"github.com/wisp-renderer/wisp-installer/internal/config"
)

func main() {
	check := flag.Bool("check", false, "verify the schema file is up to date")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-check] path/to/schema.json\n", os.Args[0])
		os.Exit(2)
	}
	path := flag.Arg(0)

	bs, err := config.ReflectSchema()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bs = append(bs, '\n')

	if *check {
		existing, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if !bytes.Equal(existing, bs) {
			fmt.Fprintf(os.Stderr, "%s is out of date, run go generate ./config\n", path)
			fmt.Fprint(os.Stderr, textdiff.Unified(path, "generated", string(existing), string(bs)))
			os.Exit(1)
		}
		return
	}

	if err := os.WriteFile(path, bs, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
