// Command bulkimport serves the import API and runs one-off imports from
// the command line.
package main

func main() {
	Execute()
}
