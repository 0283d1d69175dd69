package tatara

import "fmt"

// shouldBuildNatively decides whether the asset is built inside the
// per-architecture chroot or cross-compiled with a toolchain prefix. The
// user's preference is honored when physically possible; otherwise the only
// available path is taken with a printed warning rather than failing, since
// a refused build would degrade the whole batch. A recipe that declares
// cross-compilation broken without declaring native build support has no
// build path at all and fails fast.
func shouldBuildNatively(asset string, a Architecture, preferNative bool, opts RunOptions, execCtx *Executor) (bool, error) {
	native, err := isPropertySet(asset, a.Name, propNativeBuild, opts, execCtx)
	if err != nil {
		return false, err
	}
	crossBroken, err := isPropertySet(asset, a.Name, propBrokenCross, opts, execCtx)
	if err != nil {
		return false, err
	}

	if crossBroken && !native {
		return false, fmt.Errorf("recipe for %s declares cross-compilation broken for %s but no native build support",
			asset, a.Name)
	}

	if preferNative {
		if native {
			return true, nil
		}
		colArrow.Print("-> ")
		colWarn.Printf("%s does not support native builds, cross-compiling for %s instead\n", asset, a.Name)
		return false, nil
	}

	if crossBroken {
		colArrow.Print("-> ")
		colWarn.Printf("Cross-compilation of %s is broken for %s, building natively instead\n", asset, a.Name)
		return true, nil
	}
	return false, nil
}
