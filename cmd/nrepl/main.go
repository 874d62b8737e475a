// Command nrepl evaluates code on an nREPL server from the shell.
package main

func main() {
	Execute()
}
