// Command cyclicbackup runs one incremental+cyclic backup per invocation.
// Grounded on the teacher's cmd/main/main.go entry-point shape (resolve
// process context, parse flags, delegate to the real logic, translate the
// result into an exit code). Config layering, including the lookup of a
// cyclicbackup.yaml beside the executable when -c is not given, lives in
// internal/cli.
package main

import (
	"context"
	"os"

	"cyclicbackup/internal/cli"
)

func main() {
	code := cli.Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:])
	os.Exit(code)
}
