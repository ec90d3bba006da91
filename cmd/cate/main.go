package main

import "cate-trust-layer/internal/cli"

func main() {
	cli.Execute()
}
