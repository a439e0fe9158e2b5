package main

import (
	"os"
)

func main() {
	if err := executeRoot(newRootCmd()); err != nil {
		os.Exit(1)
	}
}
