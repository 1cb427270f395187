package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/himanishpuri/playscore/pkg/config"
	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/playscore"
)

// Global flags
var (
	configPath string
	dbPath     string
	tempDir    string
	engineName string
	mscorePath string
)

func init() {
	// Global flags go before the command; they override playscore.yaml and PLAYSCORE_* variables
	flag.StringVar(&configPath, "config", getEnvOrDefault("PLAYSCORE_CONFIG", ""), "Path to playscore.yaml")
	flag.StringVar(&dbPath, "db", "", "SQLite database for conversion history (empty disables history)")
	flag.StringVar(&tempDir, "temp", "", "Directory for engine scratch files")
	flag.StringVar(&engineName, "engine", "", "Score engine: native or musescore")
	flag.StringVar(&mscorePath, "mscore", "", "MuseScore binary used by the musescore engine")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig merges playscore.yaml, the environment and the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if tempDir != "" {
		cfg.TempDir = tempDir
	}
	if engineName != "" {
		cfg.Engine = engineName
	}
	if mscorePath != "" {
		cfg.MuseScore = mscorePath
	}
	return cfg, nil
}

// createService creates a playscore service from the merged configuration
func createService(cfg config.Config) (playscore.Service, error) {
	return playscore.NewService(
		playscore.WithDBPath(cfg.DBPath),
		playscore.WithTempDir(cfg.TempDir),
		playscore.WithEngineName(cfg.Engine),
		playscore.WithMuseScoreBinary(cfg.MuseScore),
		playscore.WithLogger(logger.GetLogger()),
	)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.SetLevel(cfg.Level())

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "convert":
		os.Exit(handleConvert(cfg, args))
	case "inspect":
		os.Exit(handleInspect(cfg, args))
	case "history":
		os.Exit(handleHistory(cfg, args))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
       _                                  
 _ __ | | __ _ _   _ ___  ___ ___  _ __ ___ 
| '_ \| |/ _' | | | / __|/ __/ _ \| '__/ _ \
| |_) | | (_| | |_| \__ \ (_| (_) | | |  __/
| .__/|_|\__,_|\__, |___/\___\___/|_|  \___|
|_|            |___/                        
        .playscore to MusicXML converter
`
	fmt.Println(banner)
}

func printUsage() {
	printBanner()
	fmt.Println(`Usage: playscore [global flags] <command> [arguments]

Commands:
  convert [inputs...] [-o path] [-merge] [-overwrite] [-verbose]
        Convert .playscore archives to MusicXML. Without inputs, files are
        chosen interactively. Several inputs without -merge ask whether to merge.
  inspect <archive>
        Show what a .playscore archive contains.
  history [-limit n]
        List recorded conversions (requires -db).

Global flags:`)
	flag.PrintDefaults()
	fmt.Println(`
Exit status: 0 ok, 2 missing or corrupt input, 3 MIDI conversion or engine
failure, 4 no usable score, 5 output not writable.`)
}
