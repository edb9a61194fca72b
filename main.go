// The main package for the storefront executable.
package main

import (
	"github.com/JakeFAU/storefront/cmd"
)

func main() {
	cmd.Execute()
}
