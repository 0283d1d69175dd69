package tatara

// Architecture is one of the fixed build targets. Name is the canonical
// identifier used in paths, environment variables and CLI arguments.
// Emulation is the name the chroot provisioning tool (and its QEMU user-mode
// layer) understands, which is not always the canonical one.
type Architecture struct {
	Name      string
	Emulation string
}

// archAny tags the shared, architecture-agnostic download step.
const archAny = "any"

var architectures = []Architecture{
	{Name: "arm64", Emulation: "aarch64"},
	{Name: "armeabi", Emulation: "armv7"},
	{Name: "x86_64", Emulation: "x86_64"},
}

func archByName(name string) (Architecture, bool) {
	for _, a := range architectures {
		if a.Name == name {
			return a, true
		}
	}
	return Architecture{}, false
}

func archNames() []string {
	names := make([]string, 0, len(architectures))
	for _, a := range architectures {
		names = append(names, a.Name)
	}
	return names
}
