// Package cli provides the command-line interface for composing, signing
// and exporting documents.
package cli

import (
	"fmt"
	"os"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "compose":
		ComposeCommand(args)
	case "field":
		FieldCommand(args)
	case "send":
		SendCommand(args)
	case "view":
		ViewCommand(args)
	case "fill":
		FillCommand(args)
	case "export":
		ExportCommand(args)
	case "serve":
		ServeCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Printf("signflow - document composition and signing tool\n\n")
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  compose  Create a document record")
	fmt.Println("  field    Place a field on a draft document")
	fmt.Println("  send     Send a draft document for signing")
	fmt.Println("  view     Record that a party opened the document")
	fmt.Println("  fill     Fill a field as a signing party")
	fmt.Println("  export   Export the document with its signing certificate")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  version  Show version information")
	fmt.Println("  help     Show this help message")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Printf("  %s compose -title \"Lease\" -markdown lease.md lease.json\n", os.Args[0])
	fmt.Printf("  %s field -type signature -x 50 -y 80 -assignee contact lease.json\n", os.Args[0])
	fmt.Printf("  %s fill -role contact -field <id> -value-file signature.png lease.json\n", os.Args[0])
	fmt.Printf("  %s export -o lease.pdf lease.json\n", os.Args[0])
	fmt.Printf("  %s serve -config signflow.yaml\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Printf("signflow version %s\n", Version)
	fmt.Printf("Build time: %s\n", BuildTime)
}

func exitOnError(err error) bool {
	if err == nil {
		return false
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	osExit(1)
	return true
}
