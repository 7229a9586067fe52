// Command checkin is a terminal client for voice check-ins.
package main

import "github.com/diogo/checkin/internal/commands"

func main() {
	commands.Execute()
}
