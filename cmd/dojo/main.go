// Command dojo runs the engagement engine: streaks, XP and levels, badges,
// game scores and leaderboards.
package main

import "github.com/eduverse-ninja/dojo/internal/cli"

func main() {
	cli.Execute()
}
