// Command restruct recovers structured control flow from lifted function
// descriptors: loops, conditionals and named idioms instead of flat block
// lists.
package main

import (
	"os"

	"github.com/liftback/restruct/cmd/restruct/commands"
)

func main() {
	os.Exit(commands.Execute())
}
