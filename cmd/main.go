package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/meghashyamc/aleph/cli"
)

func main() {
	godotenv.Load()

	if err := cli.NewRootCommand(nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
