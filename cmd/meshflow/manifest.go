package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/meshflow/manifest"
)

// =============================================================================
// Requirements Manifest Commands
// =============================================================================

// runManifest handles the manifest command and its subcommands
func runManifest(args []string) {
	if len(args) < 1 {
		printManifestUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "check":
		runManifestCheck(subargs)
	case "help", "-h", "--help":
		printManifestUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown manifest subcommand: %s\n", subcommand)
		printManifestUsage()
		os.Exit(1)
	}
}

// printManifestUsage prints the usage information for manifest command
func printManifestUsage() {
	fmt.Println(`Requirements Manifest Commands

Usage:
  meshflow manifest check <file> [options]

A manifest is a requirements file with one "name==version" entry per
line. Blank lines and "#" comments are allowed. Pass "-" as the file
to read the manifest from stdin.

Options:
  --format <fmt>    Output format: text or yaml (default: text)

Exit codes:
  0  manifest is valid (warnings allowed)
  1  manifest has errors or could not be read

Examples:
  meshflow manifest check requirements.txt
  meshflow manifest check requirements.txt --format yaml
  cat requirements.txt | meshflow manifest check -`)
}

// runManifestCheck validates a manifest file and prints the report
func runManifestCheck(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: meshflow manifest check <file> [--format text|yaml]\n")
		os.Exit(1)
	}

	path := args[0]

	fs := flag.NewFlagSet("manifest check", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text or yaml")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}

	if *format != "text" && *format != "yaml" {
		fmt.Fprintf(os.Stderr, "Unknown format: %s (supported: text, yaml)\n", *format)
		os.Exit(1)
	}

	m, err := loadManifest(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read manifest: %v\n", err)
		os.Exit(1)
	}

	report := m.BuildReport(manifest.Options{})

	switch *format {
	case "yaml":
		printReportYAML(report)
	default:
		printReportText(path, report)
	}

	if !report.Valid {
		os.Exit(1)
	}
}

// loadManifest parses a manifest from a file path or stdin ("-")
func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return manifest.ParseString(string(data)), nil
	}
	return manifest.ParseFile(path)
}

// printReportText prints a human-readable validation report
func printReportText(path string, report manifest.Report) {
	name := path
	if name == "-" {
		name = "<stdin>"
	}

	fmt.Printf("%s:\n", name)
	fmt.Print(report.Text())
}

// printReportYAML prints the validation report as YAML
func printReportYAML(report manifest.Report) {
	out, err := yaml.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
