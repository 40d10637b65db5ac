package main

import "github.com/MeKo-Tech/terrain3d/internal/cmd"

func main() {
	cmd.Execute()
}
