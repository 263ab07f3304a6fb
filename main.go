package main

import "github.com/andresmejia3/facecache/cmd"

func main() {
	cmd.Execute()
}
