// Command sealcred encrypts an upstream monitoring password with the
// gateway's credential key and prints the upstream_connections columns.
package main

import (
	"log"
	"os"

	"github.com/dmitrijs2005/nocgateway/internal/sealcred"
)

func main() {
	if err := sealcred.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("%v", err)
	}
}
