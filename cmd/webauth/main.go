// Command webauth signs in to the learning platform from a terminal and keeps
// the session in a local Badger store between invocations.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// a missing .env is fine; the environment is used as is
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
