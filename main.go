// Command catalog scrapes the gel polish collection into a JSON catalog.
package main

import "github.com/JakeFAU/gel-catalog/cmd"

func main() {
	cmd.Execute()
}
