// Command docqa answers questions about a local folder of PDF and DOCX
// documents. It indexes the folder into a local vector store and grounds
// every answer in the retrieved passages, with citations.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
