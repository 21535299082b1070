package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newManager).Execute(); err != nil {
		os.Exit(1)
	}
}
