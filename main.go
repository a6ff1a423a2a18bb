// The main package for the edital executable.
package main

import (
	"os"

	"github.com/JakeFAU/edital-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
