package main

import "github.com/fedus/safe-crossing-cf/app/cmd"

func main() {
	cmd.Execute()
}

// @title Safe Crossing API
// @version 0.0.1
// @description Crowd-sourced votes on how safe pedestrian crossings are

// @host localhost:8080
// @securityDefinitions.basic BasicAuth
// @BasePath /
