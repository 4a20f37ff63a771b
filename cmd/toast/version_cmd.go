package main

import (
	"fmt"

	"github.com/banksean/toast/internal/version"
)

type VersionCmd struct{}

func (c *VersionCmd) Run(rctx *RunContext) error {
	info := version.Get()
	fmt.Printf("Git Repository: %s\n", info.GitRepo)
	fmt.Printf("Git Branch: %s\n", info.GitBranch)
	fmt.Printf("Git Commit: %s\n", info.GitCommit)
	fmt.Printf("Build Time: %s\n", info.BuildTime)

	if info.BuildInfo == nil {
		fmt.Println("Build info not available")
		return nil
	}

	for _, setting := range info.BuildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				fmt.Printf("Git Commit: %s\n", setting.Value)
			}
		case "vcs.time":
			if info.BuildTime == "" {
				fmt.Printf("Commit Time: %s\n", setting.Value)
			}
		case "vcs.modified":
			fmt.Printf("Modified: %s\n", setting.Value)
		}
	}
	return nil
}
