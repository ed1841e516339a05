// cmd/boardctl/main.go
package main

import (
	"fmt"
	"os"

	"boardcode-go/errcode"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "boardctl: %v [%s]\n", err, errcode.Of(err))
		os.Exit(1)
	}
}
