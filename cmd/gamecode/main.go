package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7480"
	pidFile    = "gamecoded.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "provider":
		err = cmdProvider(os.Args[2:])
	case "level":
		err = cmdLevel(os.Args[2:])
	case "courses":
		err = cmdCourses(os.Args[2:])
	case "learner":
		err = cmdLearner(os.Args[2:])
	case "trial":
		err = cmdTrial(os.Args[2:])
	case "leaderboard":
		err = cmdLeaderboard(os.Args[2:])
	case "preview":
		err = cmdPreview(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("gamecode %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`GameCode - Learn HTML, CSS and JavaScript by levelling up

Usage:
  gamecode <command> [arguments]

Setup Commands:
  init            Initialize GameCode (first-time setup)
  doctor          Check system requirements
  config          Show current configuration
  provider        Manage LLM providers

Daemon Commands:
  start           Start the GameCode daemon
  stop            Stop the GameCode daemon
  status          Show daemon status
  logs            View daemon logs

Learning Commands:
  level <xp>              Show the level and title for an XP total
  courses [lesson-id]     List courses, or show one lesson
  learner <id>            Show a learner's progress and achievements
  trial <id>              Show a guest's trial status
  leaderboard [page]      Show the XP leaderboard
  preview <file.html>     Assemble a sandboxed page from local files
                          (-css file, -js file, -o output)

Integration Commands:
  mcp             Start MCP server (for editor agents)

Other:
  help            Show this help message
  version         Show version information

Examples:
  gamecode start                          # Start daemon
  gamecode provider set-key deepseek      # Configure DeepSeek API key
  gamecode level 1250                     # Where does 1250 XP put me?
  gamecode preview index.html -css a.css  # Build a preview page`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	filled = min(max(filled, 0), width)
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
