package main

import "github.com/coursechat/coursechat/cmd"

func main() {
	cmd.Execute()
}
