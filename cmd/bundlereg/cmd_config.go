package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func handleConfigCommand(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bundlereg config <command>")
		fmt.Println("Commands: show, init")
		os.Exit(1)
	}

	switch args[0] {
	case "show":
		showConfig()
	case "init":
		initConfig()
	default:
		fmt.Printf("Unknown config command: %s\n", args[0])
		os.Exit(1)
	}
}

func showConfig() {
	if outputCfg.JSON {
		PrintResult(cfg)
		return
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		PrintError("Error: failed to marshal config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("# Active Configuration")
	fmt.Println(string(data))
	if err := cfg.Validate(); err != nil {
		fmt.Printf("# Invalid: %v\n", err)
	}
}

func initConfig() {
	configPath := ".bundlereg.yaml"

	if _, err := os.Stat(configPath); err == nil {
		PrintError("Error: config file already exists at %s\n", configPath)
		os.Exit(1)
	}

	example := `# Bundle Registry Configuration
db_path: bundlereg.db

# Metadata documents, merged by lastUpdated
sources:
  - https://example.com/bundles/index.json

# {platform} and {filename} are expanded per file
bundle_endpoint: https://example.com/bundles/{platform}/{filename}

# Override the detected platform (e.g. WindowsPlayer, OSXEditor)
# platform: LinuxPlayer

# Drop cached payloads when a session starts
unload_on_enable: true

http:
  timeout: 30s
  rate_limit: 0   # requests per second, 0 = unlimited
  user_agent: bundlereg/0.3

logging:
  level: info   # debug, info, warn, error
  format: text  # text or json

server:
  addr: ":8080"
`

	if err := os.WriteFile(configPath, []byte(example), 0o644); err != nil {
		PrintError("Error: failed to write config: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]string{"path": configPath, "status": "created"})
	} else {
		PrintInfo("Created config file: %s\n", configPath)
	}
}
