package main

import "github.com/surge-downloader/loader/cmd"

func main() {
	cmd.Execute()
}
