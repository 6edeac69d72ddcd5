package main

import "BucketDash/internal/cli"

func main() {
	cli.Execute()
}
