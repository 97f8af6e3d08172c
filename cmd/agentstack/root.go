package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	appEnv     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "agentstack",
	Short:         "RAG ingestion and retrieval service",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		// 统一加载 .env，便于集中管理 APP_* 环境变量
		loadEnvFile()
		if appEnv == "" {
			appEnv = os.Getenv("APP_ENV")
		}
		if appEnv == "" {
			appEnv = "dev"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appEnv, "env", "", "config environment (default $APP_ENV or dev)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config/<env>.yaml)")
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		}
	}
}

// resolveEnvPath 尝试从当前工作目录、可执行文件目录向上查找 .env
func resolveEnvPath() string {
	for _, path := range collectEnvCandidates() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func collectEnvCandidates() []string {
	seen := make(map[string]struct{})
	var candidates []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		candidates = append(candidates, path)
	}

	traverse := func(start string) {
		dir := filepath.Clean(start)
		for i := 0; i < 8; i++ {
			if dir == "" || dir == string(filepath.Separator) || dir == "." {
				break
			}
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if wd, err := os.Getwd(); err == nil {
		traverse(wd)
	}
	if exe, err := os.Executable(); err == nil {
		traverse(filepath.Dir(exe))
	}
	return candidates
}
