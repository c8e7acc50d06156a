package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eamonnk/agentd/cmd/root"
)

func main() {
	if err := root.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
