package main

import "github.com/heiloMeow/nudgeeq/internal/cli"

func main() {
	cli.Execute()
}
