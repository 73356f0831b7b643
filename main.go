package main

import "github.com/fmuoria/ai-interviewer/cmd"

func main() {
	cmd.Execute()
}
