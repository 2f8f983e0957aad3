// Command ragctl runs the document pipeline offline: text extraction and
// chunk index generation for a single PDF.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
