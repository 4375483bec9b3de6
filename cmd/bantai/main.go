// Command bantai is a minimal embedding example for the bantai policy
// evaluation engine: it loads a declarative policy document and an
// input document from disk and prints the resulting verdict.
package main

import "github.com/bantai/bantai/cmd/bantai/cmd"

func main() {
	cmd.Execute()
}
