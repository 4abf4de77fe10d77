package main

import "github.com/naka-gawa/github-activity-report/cmd"

func main() {
	cmd.Execute()
}
