package tatara

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load /etc/tatara.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge TATARA_* env overrides
	mergeEnvOverrides(cfg)

	return cfg, nil
}

// Merge TATARA_* overrides from the host environment snapshot
func mergeEnvOverrides(cfg *Config) {
	for key, val := range hostEnv {
		if strings.HasPrefix(key, envPrefix) {
			cfg.Values[key] = val
		}
	}
}

func initConfig(cfg *Config) {
	RecipesDir = cfg.Values["TATARA_RECIPES"]
	if RecipesDir == "" {
		RecipesDir = "/var/db/tatara/recipes"
	}

	CacheDir = cfg.Values["TATARA_CACHE_DIR"]
	if CacheDir == "" {
		CacheDir = "/var/cache/tatara"
	}

	// An explicit build directory is wiped on every run, never reused.
	DefaultBuildDir = cfg.Values["TATARA_BUILD_DIR"]

	Debug = false
	if cfg.Values["TATARA_DEBUG"] == "1" {
		Debug = true
	}
	Verbose = false
	if cfg.Values["TATARA_VERBOSE"] == "1" {
		Verbose = true
	}

	artifactFormat = cfg.Values["TATARA_ARTIFACT_FORMAT"]
	switch artifactFormat {
	case "zst", "gz", "xz":
	case "":
		artifactFormat = "zst"
	default:
		colWarn.Printf("Unknown artifact format %q, using zst\n", artifactFormat)
		artifactFormat = "zst"
	}

	ArtifactDir = filepath.Join(CacheDir, "artifacts")
	LogStore = filepath.Join(CacheDir, "logs")
}
