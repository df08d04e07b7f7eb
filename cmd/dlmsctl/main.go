// Command dlmsctl is a small demonstration client for the session engine:
// it associates, reads and writes a couple of attributes, and releases,
// over an in-memory loopback transport standing in for a real meter link
// (transport/framing is out of scope for this module — see DESIGN.md).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dlmsctl",
	Short: "dlmsctl exercises the DLMS/COSEM session engine against a loopback meter double",
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
