package main

// @title AgentStack RAG API
// @version 1.0
// @description 文档摄取、语义检索与检索增强问答
// @BasePath /
// @schemes http https

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
