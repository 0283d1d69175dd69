package tatara

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: tatara <command> [arguments]")
	colSuccess.Println("Run 'tatara <command>' for advanced options")
	fmt.Println()
	cPrintln(colInfo, "Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"list, ls", "[name]", "List available asset recipes, optionally filter by name"},
		{"build, b", "[options] <asset|all>", "Build asset(s) for the requested architectures"},
		{"log", "<asset> <arch>", "Show archived build logs for one asset and architecture"},
		{"logs", "", "TUI browser over all archived build logs"},
		{"upload", "[asset...]", "Upload built artifacts to the mirror"},
		{"clean", "", "Remove cached artifacts and archived logs"},
	}

	// Find the longest usage string to size the first column.
	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}
	fmt.Println()
}

// resolveToolchains maps every requested architecture to a cross toolchain
// prefix before any build starts. Precedence: per-arch flag, then the host
// architecture's implicit "none", then the global TATARA_CROSS_COMPILE
// default. A missing toolchain for any requested architecture is fatal up
// front rather than mid-batch.
func resolveToolchains(archs []Architecture, flags map[string]string, cfg *Config) (map[string]string, error) {
	hostArch := cfg.Values["TATARA_HOST_ARCH"]
	global := cfg.Values["TATARA_CROSS_COMPILE"]

	out := make(map[string]string, len(archs))
	for _, a := range archs {
		switch {
		case flags[a.Name] != "":
			out[a.Name] = flags[a.Name]
		case a.Name == hostArch:
			out[a.Name] = "none"
		case global != "":
			out[a.Name] = global
		default:
			return nil, fmt.Errorf("no toolchain configured for %s: pass -toolchain-%s or set TATARA_CROSS_COMPILE", a.Name, a.Name)
		}
	}
	return out, nil
}

// listRecipes prints the asset recipes found in the recipe directory.
func listRecipes(filter string) error {
	matches, err := filepath.Glob(filepath.Join(RecipesDir, "*.sh"))
	if err != nil {
		return err
	}
	var names []string
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".sh")
		if filter == "" || strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no recipes found in %s", RecipesDir)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// handleBuildCommand parses build flags, resolves toolchains, then runs the
// pipeline once per requested asset. Every asset is attempted even when an
// earlier one fails.
func handleBuildCommand(args []string, cfg *Config) error {
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	var archFlag = buildCmd.String("arch", "all", "Target architecture, or 'all'.")
	var native = buildCmd.Bool("native", false, "Prefer native (emulated chroot) builds where the recipe allows it.")
	var buildDirFlag = buildCmd.String("builddir", "", "Persistent build directory (default: a fresh temp dir).")
	var tcArm64 = buildCmd.String("toolchain-arm64", "", "Cross toolchain prefix for arm64.")
	var tcArmeabi = buildCmd.String("toolchain-armeabi", "", "Cross toolchain prefix for armeabi.")
	var tcX8664 = buildCmd.String("toolchain-x86_64", "", "Cross toolchain prefix for x86_64.")
	var verbose = buildCmd.Bool("v", false, "Enable verbose output.")

	if err := buildCmd.Parse(args); err != nil {
		return fmt.Errorf("error parsing build flags: %v", err)
	}
	if *verbose {
		Verbose = true
	}

	if buildCmd.NArg() < 1 {
		return fmt.Errorf("usage: tatara build [options] <asset|all>")
	}

	var archs []Architecture
	if *archFlag == "all" {
		archs = architectures
	} else {
		for _, name := range strings.Split(*archFlag, ",") {
			a, ok := archByName(strings.TrimSpace(name))
			if !ok {
				return fmt.Errorf("unknown architecture %q (known: %s)", name, strings.Join(archNames(), ", "))
			}
			archs = append(archs, a)
		}
	}

	toolchains, err := resolveToolchains(archs, map[string]string{
		"arm64":   *tcArm64,
		"armeabi": *tcArmeabi,
		"x86_64":  *tcX8664,
	}, cfg)
	if err != nil {
		return err
	}

	assets := buildCmd.Args()
	if len(assets) == 1 && assets[0] == "all" {
		matches, err := filepath.Glob(filepath.Join(RecipesDir, "*.sh"))
		if err != nil || len(matches) == 0 {
			return fmt.Errorf("no recipes found in %s", RecipesDir)
		}
		assets = assets[:0]
		for _, path := range matches {
			assets = append(assets, strings.TrimSuffix(filepath.Base(path), ".sh"))
		}
		sort.Strings(assets)
	}

	buildRoot := *buildDirFlag
	if buildRoot == "" {
		buildRoot = DefaultBuildDir
	}
	if buildRoot == "" {
		tmp, err := os.MkdirTemp("", "tatara-*")
		if err != nil {
			return fmt.Errorf("failed to create build directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		buildRoot = tmp
	}

	failed := 0
	for _, asset := range assets {
		if err := buildAsset(asset, archs, toolchains, *native, buildRoot, RecipesDir, UserExec); err != nil {
			cPrintf(colError, "Build of %s failed: %v\n", asset, err)
			failed++
			continue
		}
		colArrow.Print("-> ")
		colSuccess.Printf("%s built successfully\n", asset)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d asset build(s) failed", failed, len(assets))
	}
	return nil
}

// handleCleanCommand wipes the artifact store and archived logs. Chroot
// teardown can leave root-owned droppings in the cache, so removal goes
// through the root executor.
func handleCleanCommand() error {
	for _, dir := range []string{ArtifactDir, LogStore} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := RootExec.Run(exec.Command("rm", "-rf", dir)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	colArrow.Print("-> ")
	colSuccess.Println("Cache cleaned")
	return nil
}

// Main is the CLI entrypoint for cmd/tatara.
func Main() {
	// The environment snapshot everything downstream reads from.
	captureHostEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					// Critical phase: block the 1st signal, force exit on a 2nd
					colArrow.Print("\n-> ")
					colError.Printf("Chroot teardown in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
					cancel()
					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(0)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.Disable()
	}

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	configPath := ConfigFile
	if override := hostEnv["TATARA_CONFIG"]; override != "" {
		configPath = override
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	initConfig(cfg)

	if needsRootPrivileges(os.Args[1:]) {
		if err := authenticateOnce(); err != nil {
			fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
			os.Exit(1)
		}
	}

	UserExec = &Executor{
		Context:         ctx,
		ShouldRunAsRoot: false,
	}
	RootExec = &Executor{
		Context:         ctx,
		ShouldRunAsRoot: true,
	}

	var exitCode int

	switch os.Args[1] {
	case "build", "b":
		if err := handleBuildCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
			exitCode = 1
		}

	case "list", "ls":
		filter := ""
		if len(os.Args) > 2 {
			filter = os.Args[2]
		}
		if err := listRecipes(filter); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			exitCode = 1
		}

	case "log":
		if len(os.Args) < 4 {
			fmt.Println("Usage: tatara log <asset> <arch>")
			os.Exit(1)
		}
		if err := handleLogCommand(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			exitCode = 1
		}

	case "logs":
		exitCode = runLogBrowser()

	case "upload":
		if err := handleUploadCommand(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			exitCode = 1
		}

	case "clean":
		if err := handleCleanCommand(); err != nil {
			fmt.Fprintf(os.Stderr, "Clean failed: %v\n", err)
			exitCode = 1
		}

	case "version", "--version", "-v":
		colNote.Printf("tatara %s built %s\n", version, buildDate)

	case "help", "--help", "-h":
		printHelp()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printHelp()
		exitCode = 1
	}

	os.Exit(exitCode)
}
