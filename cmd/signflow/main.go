// Command signflow composes documents, collects signatures and exports the
// signed PDF with its signing certificate.
//
// Usage:
//
//	signflow <command> [options] <args>
//
// Commands:
//
//	compose  Create a document record
//	field    Place a field on a draft document
//	send     Send a draft document for signing
//	view     Record that a party opened the document
//	fill     Fill a field as a signing party
//	export   Export the document with its signing certificate
//	serve    Run the HTTP API
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Compose a rich-text document and place a signature for the contact
//	signflow compose -title "Lease" -markdown lease.md lease.json
//	signflow field -type signature -x 50 -y 80 lease.json
//
//	# Sign and export
//	signflow send lease.json
//	signflow fill -role contact -field <id> -value-file signature.png lease.json
//	signflow export lease.json
package main

import (
	"os"

	"github.com/georgepadayatti/signflow/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/signflow
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
