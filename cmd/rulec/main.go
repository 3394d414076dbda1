// Command rulec compiles an authored CSV or TSV rule table into the JSON
// table the server loads.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mrwolf/moodtrack/internal/rules"
	"github.com/mrwolf/moodtrack/internal/vault"
)

func main() {
	log.SetFlags(0)

	in := flag.String("in", "", "rule source file (CSV or TSV)")
	out := flag.String("out", "", "compiled table path (default <vault>/Rules/compiled.json)")
	vaultPath := flag.String("vault", os.Getenv("MOOD_VAULT_PATH"), "vault directory")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: rulec -in rules.csv [-out compiled.json | -vault dir]")
		os.Exit(2)
	}
	if *out == "" && *vaultPath == "" {
		log.Fatal("one of -out or -vault is required")
	}

	t, report, err := rules.CompileFile(*in)
	if err != nil {
		log.Fatalf("Failed to compile %s: %v", *in, err)
	}

	path, err := vault.NewVault(*vaultPath).WriteRuleTable(*out, t)
	if err != nil {
		log.Fatalf("Failed to write table: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Path string `json:"path"`
		rules.Report
	}{path, report}); err != nil {
		log.Fatalf("Failed to print report: %v", err)
	}
}
